package methods

import (
	"cmp"
	"context"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"sync"

	"github.com/samber/lo"
	"norelock.dev/rpcsite/internal/rpc"
	"norelock.dev/rpcsite/internal/utils"
)

// Petstore method names.
const (
	MethodGetPets          = "Petstore.get_pets"
	MethodCreatePet        = "Petstore.create_pet"
	MethodCreateManyPet    = "Petstore.createManyPet"
	MethodCreateManyFixPet = "Petstore.createManyFixPet"
	MethodGetPetByID       = "Petstore.get_pet_by_id"
	MethodDeletePetByID    = "Petstore.delete_pet_by_id"
	MethodRemovePet        = "Petstore.removePet"
)

// maxPetID is the highest id removePet accepts.
const maxPetID = 10

// NewPet is a pet that has not been stored yet.
type NewPet struct {
	Name string  `json:"name" validate:"required,min=1,max=64"`
	Tag  *string `json:"tag,omitempty"`
}

// Pet is a stored pet.
type Pet struct {
	ID   int     `json:"id" validate:"gte=1"`
	Name string  `json:"name" validate:"required,min=1,max=64"`
	Tag  *string `json:"tag,omitempty"`
}

// PetNotFoundError is returned when no pet has the requested id.
type PetNotFoundError struct {
	PetID  int
	Reason string
}

func (e *PetNotFoundError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("pet %d not found", e.PetID)
}

// PetStore is an in-memory pet repository.
type PetStore struct {
	mutex  sync.RWMutex
	pets   []Pet
	nextID int
}

// NewPetStore creates a store seeded with a few pets.
func NewPetStore() *PetStore {
	s := &PetStore{nextID: 1}
	for _, p := range []NewPet{
		{Name: "Bob", Tag: lo.ToPtr("dog")},
		{Name: "Eve", Tag: lo.ToPtr("cat")},
		{Name: "Alice", Tag: lo.ToPtr("bird")},
	} {
		s.Create(p)
	}
	return s
}

// List returns pets having any of tags, at most limit of them. A limit of
// zero or less means no limit.
func (s *PetStore) List(tags []string, limit int) []Pet {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	pets := lo.Filter(s.pets, func(p Pet, _ int) bool {
		return len(tags) == 0 || (p.Tag != nil && slices.Contains(tags, *p.Tag))
	})
	if limit > 0 && len(pets) > limit {
		pets = pets[:limit]
	}
	return pets
}

// Create stores p under a new id.
func (s *PetStore) Create(p NewPet) Pet {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	pet := Pet{ID: s.nextID, Name: p.Name, Tag: p.Tag}
	s.nextID++
	s.pets = append(s.pets, pet)
	return pet
}

// Get returns the pet with id.
func (s *PetStore) Get(id int) (Pet, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return lo.Find(s.pets, func(p Pet) bool { return p.ID == id })
}

// Delete removes the pet with id.
func (s *PetStore) Delete(id int) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	i := slices.IndexFunc(s.pets, func(p Pet) bool { return p.ID == id })
	if i < 0 {
		return false
	}
	s.pets = slices.Delete(s.pets, i, i+1)
	return true
}

// PetstoreHandler serves the Petstore methods.
type PetstoreHandler struct {
	store  *PetStore
	logger *utils.Logger
}

// NewPetstoreHandler creates a new PetstoreHandler.
func NewPetstoreHandler(store *PetStore, logger *utils.Logger) *PetstoreHandler {
	return &PetstoreHandler{store: store, logger: logger.Named("petstore")}
}

// GetPetsParams represents the parameters for the get_pets method.
type GetPetsParams struct {
	Tags  []string `json:"tags,omitempty" description:"tags to filter by"`
	Limit *int     `json:"limit" validate:"min=1,max=100" description:"maximum number of results to return"`
}

var petNotFoundDoc = rpc.ErrorDoc{Code: int(rpc.ErrServerError), Message: "Server error", Data: map[string]any{"message": "pet not found"}}

// RegisterMethods registers the Petstore methods and the pet not found
// error handler.
func (h *PetstoreHandler) RegisterMethods(hr rpc.MethodRegistrar, errs *rpc.ErrorHandlers) error {
	r := &registrar{mr: hr}

	r.register(MethodGetPets, rpc.Typed(h.GetPets),
		rpc.WithSummary("Returns all pets from the system that the user has access to"),
		rpc.WithDescription("Nam sed condimentum est. Maecenas tempor sagittis sapien, nec rhoncus sem sagittis sit amet."),
		rpc.WithTags("pets"),
		rpc.WithExamples(rpc.Example{
			Name:   "list dogs",
			Params: []rpc.ExampleParam{{Name: "tags", Value: []string{"dog"}}, {Name: "limit", Value: 1}},
			Result: &rpc.ExampleParam{Name: "pets", Value: []map[string]any{{"id": 1, "name": "Bob", "tag": "dog"}}},
		}))
	r.register(MethodCreatePet, rpc.Func(h.CreatePet, "newPet"),
		rpc.WithSummary("Creates a new pet in the store. Duplicates are allowed"),
		rpc.WithTags("pets"),
		rpc.WithParamDoc("newPet", "Pet to add to the store.", ""),
		rpc.WithExamples(rpc.Example{
			Name:   "create a dog",
			Params: []rpc.ExampleParam{{Name: "newPet", Value: map[string]any{"name": "Lou", "tag": "dog"}}},
		}))
	r.register(MethodCreateManyPet, rpc.Func(h.CreateManyPet, "pets", "pet"),
		rpc.WithSummary("Numbers pets without storing them"),
		rpc.WithTags("pets"))
	r.register(MethodCreateManyFixPet, rpc.Func(h.CreateManyFixPet, "pets"),
		rpc.WithSummary("Builds pets keyed by id without storing them"),
		rpc.WithTags("pets"))
	r.register(MethodGetPetByID, rpc.Func(h.GetPetByID, "id"),
		rpc.WithSummary("Returns a pet based on a single ID, or null"),
		rpc.WithTags("pets"),
		rpc.WithConstraint("id", "gte=1"),
		rpc.WithParamDoc("id", "ID of pet to fetch", ""))
	r.register(MethodDeletePetByID, rpc.Func(h.DeletePetByID, "id"),
		rpc.WithSummary("Deletes a single pet based on the ID supplied"),
		rpc.WithTags("pets"),
		rpc.WithConstraint("id", "gte=1"),
		rpc.WithParamDoc("id", "ID of pet to delete", ""),
		rpc.WithErrors(petNotFoundDoc))
	r.register(MethodRemovePet, rpc.Func(h.RemovePet, "pet"),
		rpc.WithSummary("Echoes a pet whose ID is at most 10"),
		rpc.WithTags("pets"),
		rpc.WithErrors(petNotFoundDoc))

	rpc.HandleError(errs, func(err *PetNotFoundError) (any, int) {
		data := map[string]any{"message": "Pet not found", "pet_id": err.PetID}
		if err.Reason != "" {
			data["reason"] = err.Reason
		}
		return data, http.StatusInternalServerError
	})

	return r.err
}

// GetPets lists stored pets.
func (h *PetstoreHandler) GetPets(ctx context.Context, p GetPetsParams) ([]Pet, error) {
	return h.store.List(p.Tags, lo.FromPtr(p.Limit)), nil
}

// CreatePet stores a new pet.
func (h *PetstoreHandler) CreatePet(p NewPet) Pet {
	pet := h.store.Create(p)
	h.logger.Debug("Pet created", "id", pet.ID, "name", pet.Name)
	return pet
}

// CreateManyPet numbers pets from 0, followed by pet when given.
func (h *PetstoreHandler) CreateManyPet(pets []NewPet, pet *NewPet) []Pet {
	if pet != nil {
		pets = append(slices.Clone(pets), *pet)
	}
	return lo.Map(pets, func(p NewPet, i int) Pet {
		return Pet{ID: i, Name: p.Name, Tag: p.Tag}
	})
}

// CreateManyFixPet builds pets from a map keyed by id, ordered by id.
func (h *PetstoreHandler) CreateManyFixPet(pets map[string]NewPet) ([]Pet, error) {
	out := make([]Pet, 0, len(pets))
	for key, p := range pets {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, rpc.NewInvalidParamsError("invalid pet id: '%s'", key)
		}
		out = append(out, Pet{ID: id, Name: p.Name, Tag: p.Tag})
	}
	slices.SortFunc(out, func(a, b Pet) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// GetPetByID returns the pet with id, or nil.
func (h *PetstoreHandler) GetPetByID(id int) *Pet {
	pet, ok := h.store.Get(id)
	if !ok {
		return nil
	}
	return &pet
}

// DeletePetByID deletes the pet with id.
func (h *PetstoreHandler) DeletePetByID(id int) error {
	if !h.store.Delete(id) {
		return &PetNotFoundError{PetID: id}
	}
	return nil
}

// RemovePet returns pet when its id is at most 10. A missing pet yields null.
func (h *PetstoreHandler) RemovePet(pet *Pet) (*Pet, error) {
	if pet == nil {
		return nil, nil
	}
	if pet.ID > maxPetID {
		return nil, &PetNotFoundError{
			PetID:  pet.ID,
			Reason: fmt.Sprintf("The pet with an ID greater than %d does not exist.", maxPetID),
		}
	}
	return pet, nil
}

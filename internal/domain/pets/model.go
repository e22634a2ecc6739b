package pets

import "time"

// Species define las especies soportadas.
// @Enum dog, cat
type Species string

const (
	SpeciesDog Species = "dog"
	SpeciesCat Species = "cat"
)

func (s Species) Valid() bool {
	return s == SpeciesDog || s == SpeciesCat
}

// Sex define el sexo de la mascota.
// @Enum male, female, unknown
type Sex string

const (
	SexMale    Sex = "male"
	SexFemale  Sex = "female"
	SexUnknown Sex = "unknown"
)

func (s Sex) Valid() bool {
	switch s {
	case SexMale, SexFemale, SexUnknown:
		return true
	default:
		return false
	}
}

// Pet es el registro dueño de la ruta users/{user}/pets/{pet}.
// Turnos e historia clínica cuelgan de (OwnerUserID, ID).
type Pet struct {
	ID          string
	OwnerUserID string

	Name    string
	Species Species
	Breed   string
	Sex     Sex

	BirthDate *time.Time
	WeightKg  float64 // 0 = sin dato

	Notes string

	CreatedAt time.Time
	UpdatedAt time.Time
}

package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/resorption-bidonvilles/internal"
	"github.com/frahmantamala/resorption-bidonvilles/internal/core/common/validation"
	planDatamodel "github.com/frahmantamala/resorption-bidonvilles/internal/core/datamodel/plan"
)

type FinanceDTO struct {
	Year    int             `json:"year" validate:"required,min=2000,max=2100"`
	Type    string          `json:"type" validate:"required,max=100"`
	Amount  decimal.Decimal `json:"amount"`
	Details *string         `json:"details" validate:"omitempty,max=1000"`
}

type CreateDTO struct {
	Name            string       `json:"name" validate:"required,max=255"`
	Departement     string       `json:"departement" validate:"required,max=3"`
	StartedAt       time.Time    `json:"startedAt" validate:"required"`
	ExpectedToEndAt *time.Time   `json:"expectedToEndAt"`
	Goals           *string      `json:"goals" validate:"omitempty,max=5000"`
	Topics          []Topic      `json:"topics" validate:"required,min=1,unique,dive,plan_topic"`
	Managers        []int64      `json:"managers" validate:"dive,gt=0"`
	Operators       []int64      `json:"operators" validate:"dive,gt=0"`
	Shantytowns     []int64      `json:"shantytowns" validate:"dive,gt=0"`
	Finances        []FinanceDTO `json:"finances" validate:"dive"`
}

func (d CreateDTO) Validate() *internal.AppError {
	v := validation.NewValidator().Struct(d)
	v.Field("expectedToEndAt", d.ExpectedToEndAt).
		NotBefore(&d.StartedAt, "La date de fin prévue ne peut pas être antérieure à la date de début")
	for i, f := range d.Finances {
		v.Field(fmt.Sprintf("finances[%d].amount", i), f.Amount).Custom(func(value interface{}) string {
			if amount, _ := value.(decimal.Decimal); amount.IsNegative() {
				return "Le montant ne peut pas être négatif"
			}
			return ""
		})
	}
	return v.Validate()
}

func (d CreateDTO) topicsJSON() []byte {
	raw, _ := json.Marshal(d.Topics)
	return raw
}

func (d CreateDTO) finances() []planDatamodel.Finance {
	out := make([]planDatamodel.Finance, 0, len(d.Finances))
	for _, f := range d.Finances {
		out = append(out, planDatamodel.Finance{
			Year:    f.Year,
			Type:    f.Type,
			Amount:  f.Amount.Round(2),
			Details: f.Details,
		})
	}
	return out
}

type AudienceDTO struct {
	Total    int `json:"total" validate:"min=0"`
	Families int `json:"families" validate:"min=0,ltefield=Total"`
}

type StateDTO struct {
	Date        time.Time                 `json:"date" validate:"required"`
	AudienceIn  AudienceDTO               `json:"audienceIn"`
	AudienceOut AudienceDTO               `json:"audienceOut"`
	Indicators  map[Topic]json.RawMessage `json:"indicators"`
}

// Validate checks the state against the plan it is added to.
func (d StateDTO) Validate(startedAt time.Time) *internal.AppError {
	v := validation.NewValidator().Struct(d)
	v.Field("date", d.Date).NotFuture()
	v.Field("date", &d.Date).
		NotBefore(&startedAt, "La date ne peut pas être antérieure au début de l'action")
	for topic, block := range d.Indicators {
		v.Field("indicators."+string(topic), block).Custom(func(value interface{}) string {
			raw, _ := value.(json.RawMessage)
			if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
				return "Les indicateurs doivent être un objet"
			}
			return ""
		})
	}
	return v.Validate()
}

// state builds the stored snapshot. Indicator blocks of undeclared topics are dropped.
func (d StateDTO) state(planID int64, topics []Topic) planDatamodel.State {
	indicators, _ := json.Marshal(keepTopics(d.Indicators, topics))
	return planDatamodel.State{
		PlanID:              planID,
		Date:                d.Date,
		AudienceInTotal:     d.AudienceIn.Total,
		AudienceInFamilies:  d.AudienceIn.Families,
		AudienceOutTotal:    d.AudienceOut.Total,
		AudienceOutFamilies: d.AudienceOut.Families,
		Indicators:          indicators,
	}
}

type CloseDTO struct {
	ClosedAt     *time.Time `json:"closedAt"`
	FinalComment string     `json:"finalComment" validate:"required,max=5000"`
}

func (d CloseDTO) Validate(startedAt time.Time) *internal.AppError {
	v := validation.NewValidator().Struct(d)
	v.Field("closedAt", d.ClosedAt).
		Required().
		NotFuture().
		NotBefore(&startedAt, "La date de fermeture ne peut pas être antérieure au début de l'action")
	return v.Validate()
}

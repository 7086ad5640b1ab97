package shantytown_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	shantytownDatamodel "github.com/frahmantamala/resorption-bidonvilles/internal/core/datamodel/shantytown"
	"github.com/frahmantamala/resorption-bidonvilles/internal/permission"
	"github.com/frahmantamala/resorption-bidonvilles/internal/shantytown"
)

var restrictedKeys = []string{
	"ownerComplaint", "justiceProcedure", "justiceRendered", "justiceRenderedBy", "justiceRenderedAt",
	"justiceChallenged", "policeStatus", "policeRequestedAt", "policeGrantedAt", "bailiff",
}

func sampleRow(id int64, departement, city string) shantytownDatamodel.Row {
	return shantytownDatamodel.Row{
		ID: id,
		Fields: shantytownDatamodel.Fields{
			Name:              strPtr("Les Lilas"),
			Latitude:          48.9362,
			Longitude:         2.3574,
			Address:           "12 rue des Lilas, 93200 Saint-Denis",
			CityCode:          departement + "066",
			FieldTypeID:       1,
			OwnerTypeID:       2,
			ElectricityTypeID: 3,
			Status:            "open",
			BuiltAt:           timePtr(time.Date(1987, 8, 11, 10, 0, 0, 250_000_000, time.UTC)),
			JusticeProcedure:  boolPtr(true),
			PoliceStatus:      strPtr("requested"),
			CreatedBy:         1,
			CreatedAt:         time.Date(2019, 3, 1, 9, 0, 0, 0, time.UTC),
		},
		CityName:             city,
		DepartementCode:      departement,
		DepartementName:      "Seine-Saint-Denis",
		RegionCode:           "11",
		RegionName:           "Île-de-France",
		FieldTypeLabel:       "Terrain",
		OwnerTypeLabel:       "Public",
		ElectricityTypeLabel: "Oui",
	}
}

func toMap(v interface{}) map[string]interface{} {
	raw, err := json.Marshal(v)
	Expect(err).NotTo(HaveOccurred())
	var out map[string]interface{}
	Expect(json.Unmarshal(raw, &out)).To(Succeed())
	return out
}

var _ = Describe("Serialize", func() {
	It("nests the flat columns", func() {
		view := shantytown.Serialize(sampleRow(3, "93", "Saint-Denis"), permission.Permission{Allowed: true})

		Expect(view.City).To(Equal(shantytown.CityView{Code: "93066", Name: "Saint-Denis"}))
		Expect(view.Departement).To(Equal(shantytown.AreaView{Code: "93", Name: "Seine-Saint-Denis"}))
		Expect(view.Region.Code).To(Equal("11"))
		Expect(view.EPCI).To(BeNil())
		Expect(view.FieldType).To(Equal(shantytown.RefView{ID: 1, Label: "Terrain"}))
		Expect(view.ElectricityType).To(Equal(shantytown.RefView{ID: 3, Label: "Oui"}))
		Expect(view.AddressSimple).To(Equal("12 rue des Lilas"))
	})

	It("converts timestamps to seconds and keeps nulls", func() {
		view := shantytown.Serialize(sampleRow(3, "93", "Saint-Denis"), permission.Permission{Allowed: true})

		Expect(*view.BuiltAt).To(Equal(555674400.25))
		Expect(view.DeclaredAt).To(BeNil())

		out := toMap(view)
		Expect(out).To(HaveKeyWithValue("declaredAt", BeNil()))
		Expect(out).To(HaveKeyWithValue("closedAt", BeNil()))
		Expect(out["socialOrigins"]).To(BeEmpty())
	})

	It("omits restricted keys without data_justice", func() {
		out := toMap(shantytown.Serialize(sampleRow(3, "93", "Saint-Denis"), permission.Permission{Allowed: true}))
		for _, key := range restrictedKeys {
			Expect(out).NotTo(HaveKey(key))
		}
	})

	It("includes restricted keys, nulls included, with data_justice", func() {
		out := toMap(shantytown.Serialize(sampleRow(3, "93", "Saint-Denis"), permission.Permission{Allowed: true, DataJustice: true}))
		for _, key := range restrictedKeys {
			Expect(out).To(HaveKey(key))
		}
		Expect(out["justiceProcedure"]).To(BeTrue())
		Expect(out["policeStatus"]).To(Equal("requested"))
		Expect(out["bailiff"]).To(BeNil())
	})

	It("falls back when the address has no street part", func() {
		row := sampleRow(3, "93", "Saint-Denis")
		row.Fields.Address = ", 93200 Saint-Denis"
		Expect(shantytown.Serialize(row, permission.Permission{}).AddressSimple).To(Equal("Pas d'adresse précise"))
	})
})

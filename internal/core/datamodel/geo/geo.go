package geo

type Region struct {
	Code string `gorm:"primaryKey;column:code;size:2"`
	Name string `gorm:"column:name;not null"`
}

func (Region) TableName() string {
	return "regions"
}

type Departement struct {
	Code       string `gorm:"primaryKey;column:code;size:3"`
	Name       string `gorm:"column:name;not null"`
	RegionCode string `gorm:"column:region_code;not null;index"`
}

func (Departement) TableName() string {
	return "departements"
}

type EPCI struct {
	Code            string `gorm:"primaryKey;column:code;size:9"`
	Name            string `gorm:"column:name;not null"`
	DepartementCode string `gorm:"column:departement_code;not null;index"`
}

func (EPCI) TableName() string {
	return "epci"
}

type City struct {
	Code            string  `gorm:"primaryKey;column:code;size:5"`
	Name            string  `gorm:"column:name;not null"`
	EPCICode        string  `gorm:"column:epci_code;not null;index"`
	DepartementCode string  `gorm:"column:departement_code;not null;index"`
	Main            *string `gorm:"column:main"`
}

func (City) TableName() string {
	return "cities"
}

// Chain is one flattened row of the hierarchy, null above the resolved level.
type Chain struct {
	RegionCode      *string `gorm:"column:region_code"`
	RegionName      *string `gorm:"column:region_name"`
	DepartementCode *string `gorm:"column:departement_code"`
	DepartementName *string `gorm:"column:departement_name"`
	EPCICode        *string `gorm:"column:epci_code"`
	EPCIName        *string `gorm:"column:epci_name"`
	CityCode        *string `gorm:"column:city_code"`
	CityName        *string `gorm:"column:city_name"`
}

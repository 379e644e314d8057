package food

// ColumnRole tells the normalizer what a raw column holds.
type ColumnRole int

const (
	RoleIgnore ColumnRole = iota
	RoleCode
	RoleNameEn
	RoleNameSw
	RoleGroup
	RoleEnergy
	RoleProtein
	RoleFat
	RoleCarbs
	RoleFiber
	RoleMicro // Name is the micronutrient key
)

// Column is one expected raw column.
type Column struct {
	Name string
	Role ColumnRole
}

// Schema is the versioned column layout of the source tables. A raw row
// whose cell count differs from len(Columns) is rejected, never realigned.
type Schema struct {
	Columns []Column
}

// HeaderTokens returns the signature tokens that identify a header row of
// this schema in the source document.
func (s Schema) HeaderTokens() []string {
	return []string{"food", "energy", "protein"}
}

// DefaultKFCTSchema describes the KFCT 2018 layout: code, bilingual names,
// proximates and the tracked micronutrients. The group is not a column in
// the source tables; it derives from the food-code letter.
func DefaultKFCTSchema() Schema {
	return Schema{Columns: []Column{
		{Name: "food_code", Role: RoleCode},
		{Name: "food_name_english", Role: RoleNameEn},
		{Name: "food_name_swahili", Role: RoleNameSw},
		{Name: "water_g", Role: RoleIgnore},
		{Name: "energy_kcal", Role: RoleEnergy},
		{Name: "protein_g", Role: RoleProtein},
		{Name: "fat_g", Role: RoleFat},
		{Name: "carbs_g", Role: RoleCarbs},
		{Name: "fibre_g", Role: RoleFiber},
		{Name: "calcium_mg", Role: RoleMicro},
		{Name: "iron_mg", Role: RoleMicro},
		{Name: "zinc_mg", Role: RoleMicro},
		{Name: "vit_a_mcg", Role: RoleMicro},
		{Name: "vit_c_mg", Role: RoleMicro},
	}}
}

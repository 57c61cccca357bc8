package schema

// Default returns the built-in registry for the school staff directory:
// schools and staff linked many-to-many through school_staff.
func Default() *Registry {
	r, err := New(defaultTables, defaultRelations)
	if err != nil {
		// The built-in definition is validated by tests; a failure here is
		// a programming error, not a runtime condition.
		panic(err)
	}
	return r
}

var defaultTables = []Table{
	{
		Key:        "schools",
		Name:       "schools",
		PrimaryKey: "id",
		Fields: []Field{
			{Key: "id", Type: TypeNumber},
			{Key: "school_name", Type: TypeText},
			{Key: "city", Type: TypeText},
			{Key: "state", Type: TypeText},
			{Key: "division", Type: TypeText},
			{Key: "conference", Type: TypeText},
			{Key: "website", Type: TypeURL},
			{Key: "date_created", Type: TypeDate},
		},
	},
	{
		Key:        "staff",
		Name:       "staff",
		PrimaryKey: "id",
		Fields: []Field{
			{Key: "id", Type: TypeNumber},
			{Key: "full_name", Type: TypeText},
			{Key: "title", Type: TypeText},
			{Key: "sport_department", Type: TypeText},
			{Key: "email", Type: TypeEmail},
			{Key: "phone", Type: TypeText},
			{Key: "twitter", Type: TypeText},
			{Key: "date_updated", Type: TypeDate},
		},
	},
	{
		Key:        "school_staff",
		Name:       "school_staff",
		PrimaryKey: "id",
		Fields: []Field{
			{Key: "id", Type: TypeNumber},
			{Key: "school_id", Type: TypeNumber},
			{Key: "staff_id", Type: TypeNumber},
			{Key: "date_created", Type: TypeDate},
		},
	},
}

var defaultRelations = []Relation{
	{
		Left:     "schools",
		Right:    "staff",
		Link:     "school_staff",
		LeftKey:  "school_id",
		RightKey: "staff_id",
	},
}

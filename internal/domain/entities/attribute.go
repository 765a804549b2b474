package entities

// Attribute is one annotatable attribute applicable to a product subclass.
// AllowedValues restricts the value set when non-empty; an empty list means
// the attribute is free-form.
type Attribute struct {
	ID            int64    `json:"id" db:"id"`
	Name          string   `json:"attribute_name" db:"attribute_name"`
	Description   string   `json:"description" db:"description"`
	IsActive      bool     `json:"is_active" db:"is_active"`
	AllowedValues []string `json:"allowed_values"`
}

// Restricted reports whether the attribute carries an allowed-value list.
func (a *Attribute) Restricted() bool {
	return len(a.AllowedValues) > 0
}

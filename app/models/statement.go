package models

// Statement is one RDF triple of a harvested graph. Terms are kept in their
// N-Triples form; Context is the normalized client URL of the entry.
type Statement struct {
	ID        uint   `gorm:"primaryKey" json:"-"`
	Context   string `gorm:"type:varchar(600);index;not null" json:"context"`
	Subject   string `gorm:"type:text;not null" json:"subject"`
	Predicate string `gorm:"type:text;not null" json:"predicate"`
	Object    string `gorm:"type:text;not null" json:"object"`
}

// TableName specifies the table name for the Statement model
func (Statement) TableName() string {
	return "metadata_statements"
}

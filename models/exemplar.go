package models

// Exemplar é uma frase de referência (red/yellow) já vetorizada, usada pelo distress.DBIndex.
type Exemplar struct {
	ID        string `gorm:"primary_key;type:varchar(64)" json:"id"`
	Namespace string `gorm:"not null;index" json:"namespace"`
	Category  string `gorm:"not null" json:"category"` // red | yellow
	Text      string `gorm:"type:text" json:"text"`
	Embedding string `gorm:"type:text" json:"embedding"` // JSON array (ex: [0.1,0.2,...])
}

func (Exemplar) TableName() string { return "distress_exemplars" }

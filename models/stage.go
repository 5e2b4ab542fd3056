package models

// Stage espelha o catálogo de etapas (carregado da configuração) para integridade referencial.
// Nomes não são únicos aqui: o catálogo já valida, e o seed linha a linha
// precisa tolerar nomes trocados entre duas etapas.
type Stage struct {
	StageNo   int    `gorm:"column:stage_no;primary_key;AUTO_INCREMENT:false" json:"stage_no"`
	StageName string `gorm:"column:stage_name;not null" json:"stage_name"`
	Status    int    `gorm:"column:status;not null" json:"status"`
}

func (Stage) TableName() string { return "stages_dict" }

// Category espelha o catálogo de categorias selecionáveis na etapa 1.
type Category struct {
	CategoryNo   int    `gorm:"column:category_no;primary_key;AUTO_INCREMENT:false" json:"category_no"`
	CategoryName string `gorm:"column:category_name;not null" json:"category_name"`
	Status       int    `gorm:"column:status;not null" json:"status"`
}

func (Category) TableName() string { return "category_dict" }

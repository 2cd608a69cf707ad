package datastat

// queryFilter ist ein einzelnes Filterkriterium der Analytics-API.
type queryFilter struct {
	Column   string `json:"column"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// queryRequest ist der Body der paginierten Analytics-Abfrage.
type queryRequest struct {
	Community      string        `json:"community"`
	Dim            []string      `json:"dim"`
	Name           string        `json:"name"`
	Page           int           `json:"page"`
	PageSize       int           `json:"page_size"`
	Filters        []queryFilter `json:"filters"`
	ConditionLogic string        `json:"conditonsLogic"`
	OrderField     string        `json:"order_field"`
	OrderDir       string        `json:"order_dir"`
}

// row ist die Obermenge aller Dimensionen, die Issue- und Mail-Abfragen liefern.
type row struct {
	UUID      string `json:"uuid"`
	HTMLURL   string `json:"html_url"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	State     string `json:"state"`

	EmailID string `json:"email_id"`
	Subject string `json:"subject"`
	Content string `json:"content"`
}

// queryResponse ist eine Seite der Analytics-Antwort.
type queryResponse struct {
	Data []row `json:"data"`
}

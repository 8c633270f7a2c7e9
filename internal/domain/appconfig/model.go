package appconfig

// Places — политика объявлений.
type Places struct {
	EnablePaidListings bool `json:"enablePaidListings" mapstructure:"enable_paid_listings"`
	AutoApprove        bool `json:"autoApprove" mapstructure:"auto_approve"`
	// SearchRadius в метрах
	SearchRadius float64 `json:"searchRadius" mapstructure:"search_radius" validate:"gte=0"`
}

type Reviews struct {
	Disabled        bool `json:"disabled" mapstructure:"disabled"`
	AutoApprove     bool `json:"autoApprove" mapstructure:"auto_approve"`
	MultiplePerUser bool `json:"multiplePerUser" mapstructure:"multiple_per_user"`
}

type AppConfig struct {
	Places  Places  `json:"places"`
	Reviews Reviews `json:"reviews"`
}

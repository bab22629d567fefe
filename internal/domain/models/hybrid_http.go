package models

// Requests for hybrid HTTP endpoints.

// PredictRequest either names a symbol to load from the feature store or carries records inline.
type PredictRequest struct {
	Symbol  string          `json:"symbol" validate:"required_without=Records"`
	N       int             `json:"n" default:"60" validate:"gte=1,lte=5000"`
	TF      string          `json:"tf" default:"1m" validate:"oneof=1s 1m 5m"`
	Records []FeatureRecord `json:"records"`
	Publish bool            `json:"publish"`
}

type TrainingSample struct {
	Records []FeatureRecord `json:"records" validate:"required,min=1"`
	Label   Signal          `json:"label" validate:"required,oneof=sell hold buy"`
}

type TrainRequest struct {
	Samples []TrainingSample `json:"samples" validate:"required,min=1,dive"`
}

type HistoryRequest struct {
	Last int `query:"last" json:"last" default:"0" validate:"gte=0"`
}

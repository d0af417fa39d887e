package models

import "time"

// Service is a queueable endpoint of an establishment.
type Service struct {
	ID                 int64     `json:"id" yaml:"id"`
	EstablishmentID    int64     `json:"establishment_id" yaml:"establishment_id"`
	Name               string    `json:"name" yaml:"name"`
	MaxCapacity        int       `json:"max_capacity" yaml:"max_capacity"`
	IsOpen             bool      `json:"is_open" yaml:"is_open"`
	QueueNumberCounter int64     `json:"queue_number_counter" yaml:"-"`
	AvgServiceMinutes  int       `json:"avg_service_minutes" yaml:"avg_service_minutes"`
	CreatedAt          time.Time `json:"created_at" yaml:"-"`
	UpdatedAt          time.Time `json:"updated_at" yaml:"-"`
}

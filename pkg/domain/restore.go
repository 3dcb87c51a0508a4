package domain

import (
	"time"
)

// RestoreContext describes one cluster-wide restore operation. It is
// created by the control surface and shared by every block of the restore.
type RestoreContext struct {
	Name             string `json:"name" mapstructure:"name"`
	ExternalLocation string `json:"external_location" mapstructure:"external_location"`
	AccessKey        string `json:"s3_access_key" mapstructure:"s3_access_key"`
	SecretKey        string `json:"s3_secret_key" mapstructure:"s3_secret_key"`
}

// RestoreRecord is the history entry of a single restore attempt.
type RestoreRecord struct {
	RestoreContext

	Status string
	Active bool

	StartedAt  time.Time
	FinishedAt *time.Time
}

func NewRestoreContext(name, externalLocation, accessKey, secretKey string) RestoreContext {
	return RestoreContext{
		Name:             name,
		ExternalLocation: externalLocation,
		AccessKey:        accessKey,
		SecretKey:        secretKey,
	}
}

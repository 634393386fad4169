package domain

import (
	"fmt"
	"regexp"
)

// Name identifies a data source. Must match [a-z0-9]([a-z0-9-]*[a-z0-9])?.
type Name string

var namePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

func (n Name) Validate() error {
	if !namePattern.MatchString(string(n)) {
		return fmt.Errorf("invalid data source name %q: must match %s", n, namePattern.String())
	}
	return nil
}

func (n Name) String() string {
	return string(n)
}

// DataSource is a locally reachable observability backend advertised to the
// control plane. Config is opaque to the core and passed verbatim to the
// provider module.
type DataSource struct {
	Name         Name
	ProviderType string
	Description  string
	Config       map[string]any
	Status       DataSourceStatus
}

// Clone returns a deep-enough copy suitable for a snapshot: Config is shared
// (read-only by contract) but Status is copied by value.
func (d DataSource) Clone() DataSource {
	return DataSource{
		Name:         d.Name,
		ProviderType: d.ProviderType,
		Description:  d.Description,
		Config:       d.Config,
		Status:       d.Status,
	}
}

// DataSourceStatus is the tagged union Connected | Error(ProviderError).
// The zero value is not valid; use NotCheckedStatus.
type DataSourceStatus struct {
	Connected bool
	Err       *ProviderError
}

func ConnectedStatus() DataSourceStatus {
	return DataSourceStatus{Connected: true}
}

func ErrorStatus(err ProviderError) DataSourceStatus {
	e := err
	return DataSourceStatus{Connected: false, Err: &e}
}

func NotCheckedStatus() DataSourceStatus {
	return ErrorStatus(ProviderError{Kind: ErrNotChecked})
}

// Equal reports whether two statuses represent the same observable value,
// used by the Health Checker to debounce identical consecutive statuses.
func (s DataSourceStatus) Equal(other DataSourceStatus) bool {
	if s.Connected != other.Connected {
		return false
	}
	if s.Connected {
		return true
	}
	if s.Err == nil || other.Err == nil {
		return s.Err == other.Err
	}
	return s.Err.Equal(*other.Err)
}

func (s DataSourceStatus) String() string {
	if s.Connected {
		return "Connected"
	}
	if s.Err != nil {
		return s.Err.Error()
	}
	return "Error(unknown)"
}

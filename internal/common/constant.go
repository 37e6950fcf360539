package common

// Upload field names shared by the gate, the reconciler and the API.
const (
	FieldSubjectID       = "sid"
	FieldTimePoint       = "time_point"
	FieldCentre          = "centre"
	FieldAcquisitionDate = "acquisition_date"
)

// AcquisitionDateLayout is the accepted format of the acquisition_date field.
const AcquisitionDateLayout = "2006-01-02"

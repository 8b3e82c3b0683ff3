package model

const (
	OrderStageNew = "NEW_ORDER"
)

// UploadOrder asks the ingest pipeline to import Files into an OMERO container.
type UploadOrder struct {
	UUID                         string            `json:"UUID"`
	Group                        string            `json:"Group"`
	Username                     string            `json:"Username"`
	OwnerID                      string            `json:"OwnerID"`
	DestinationID                string            `json:"DestinationID"`
	DestinationType              string            `json:"DestinationType"`
	Files                        []string          `json:"Files"`
	PreprocessingContainer       string            `json:"preprocessing_container,omitempty"`
	PreprocessingInputfile       string            `json:"preprocessing_inputfile,omitempty"`
	PreprocessingOutputfolder    string            `json:"preprocessing_outputfolder,omitempty"`
	PreprocessingAltOutputfolder string            `json:"preprocessing_altoutputfolder,omitempty"`
	ExtraParams                  map[string]string `json:"extra_params,omitempty"`
	Stage                        string            `json:"Stage"`
	Timestamp                    int64             `json:"Timestamp"`
}

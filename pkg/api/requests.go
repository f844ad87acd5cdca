package api

import "github.com/heraldhq/herald/pkg/models"

// InitiateConversationRequest is the request body for POST
// /initiate-conversation. Section-level presence is enforced by binding;
// field-level and semantic rules live in the services package so they are
// testable without HTTP.
type InitiateConversationRequest struct {
	CompanyData   CompanyDataRequest   `json:"company_data" binding:"required"`
	RecipientData RecipientDataRequest `json:"recipient_data" binding:"required"`
	RequestData   RequestDataRequest   `json:"request_data" binding:"required"`
	ProjectData   map[string]any       `json:"project_data"`
}

// CompanyDataRequest identifies the tenant project.
type CompanyDataRequest struct {
	CompanyID string `json:"company_id" binding:"required"`
	ProjectID string `json:"project_id" binding:"required"`
}

// RecipientDataRequest identifies the recipient. CommsConsent is a pointer so
// a missing field is distinguishable from an explicit false.
type RecipientDataRequest struct {
	RecipientFirstName string `json:"recipient_first_name"`
	RecipientLastName  string `json:"recipient_last_name"`
	RecipientTel       string `json:"recipient_tel"`
	RecipientEmail     string `json:"recipient_email"`
	CommsConsent       *bool  `json:"comms_consent" binding:"required"`
}

// RequestDataRequest carries the logical-request identity.
type RequestDataRequest struct {
	RequestID               string `json:"request_id" binding:"required"`
	ChannelMethod           string `json:"channel_method" binding:"required"`
	InitialRequestTimestamp string `json:"initial_request_timestamp" binding:"required"`
}

// payload converts the bound request into the domain payload.
func (r *InitiateConversationRequest) payload() models.FrontendPayload {
	consent := false
	if r.RecipientData.CommsConsent != nil {
		consent = *r.RecipientData.CommsConsent
	}
	return models.FrontendPayload{
		CompanyData: models.CompanyData{
			CompanyID: r.CompanyData.CompanyID,
			ProjectID: r.CompanyData.ProjectID,
		},
		RecipientData: models.RecipientData{
			RecipientFirstName: r.RecipientData.RecipientFirstName,
			RecipientLastName:  r.RecipientData.RecipientLastName,
			RecipientTel:       r.RecipientData.RecipientTel,
			RecipientEmail:     r.RecipientData.RecipientEmail,
			CommsConsent:       consent,
		},
		RequestData: models.RequestData{
			RequestID:               r.RequestData.RequestID,
			ChannelMethod:           models.Channel(r.RequestData.ChannelMethod),
			InitialRequestTimestamp: r.RequestData.InitialRequestTimestamp,
		},
		ProjectData: r.ProjectData,
	}
}

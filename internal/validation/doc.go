// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

/*
Package validation provides struct validation using go-playground/validator v10.

It exposes a thread-safe singleton validator with the application's custom
rules and translates failures into the API's VALIDATION_ERROR format.

Custom tags:

  - identity_api_key: browser API key ("AIza" prefix, longer than 30 chars)
  - identity_auth_domain: hosted auth domain (firebaseapp.com or web.app)
  - user_id: 1 to 128 printable characters without whitespace

Field names in messages come from the json tag, then the koanf tag, so a
missing client setting is reported as "api_key is required" rather than
by its Go field name.

Example:

	type NotificationRequest struct {
	    RecipientID string `json:"recipientId" validate:"omitempty,user_id"`
	    Title       string `json:"title" validate:"required,max=200"`
	}

	if err := validation.ValidateStruct(&req); err != nil {
	    apiErr := err.ToAPIError()
	    respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
	    return
	}
*/
package validation

// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

package validation

import (
	"strings"
	"testing"
)

type harvestPayload struct {
	SceneID   string  `json:"scene_id" validate:"required,max=64"`
	Signature string  `json:"__signature__" validate:"required"`
	MinX      float64 `json:"min_x" validate:"min=-180,max=180"`
}

func TestValidateStructPasses(t *testing.T) {
	payload := harvestPayload{SceneID: "landsat:LC80120442026121LGN00", Signature: "abc", MinX: -81}
	if verr := ValidateStruct(&payload); verr != nil {
		t.Errorf("expected valid struct, got %v", verr)
	}
}

func TestValidateStructCollectsFieldErrors(t *testing.T) {
	payload := harvestPayload{MinX: -500}
	verr := ValidateStruct(&payload)
	if verr == nil {
		t.Fatal("expected validation errors")
	}
	if len(verr.Errors()) != 3 {
		t.Fatalf("expected 3 field errors, got %d: %v", len(verr.Errors()), verr)
	}
}

func TestToAPIErrorSingleField(t *testing.T) {
	payload := harvestPayload{SceneID: "x", Signature: "y", MinX: 999}
	verr := ValidateStruct(&payload)
	if verr == nil {
		t.Fatal("expected a validation error")
	}

	apiErr := verr.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("unexpected code %q", apiErr.Code)
	}
	if apiErr.Details["field"] != "MinX" {
		t.Errorf("expected field MinX in details, got %v", apiErr.Details)
	}
}

func TestToAPIErrorMultipleFields(t *testing.T) {
	verr := ValidateStruct(&harvestPayload{})
	if verr == nil {
		t.Fatal("expected validation errors")
	}

	apiErr := verr.ToAPIError()
	if !strings.Contains(apiErr.Message, ";") {
		t.Errorf("expected joined messages, got %q", apiErr.Message)
	}
	if _, ok := apiErr.Details["fields"]; !ok {
		t.Errorf("expected fields list in details, got %v", apiErr.Details)
	}
}

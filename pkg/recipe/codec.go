package recipe

import (
	"encoding/json"
	"errors"
	"fmt"

	"k8s.io/klog/v2"
)

// legacyKelvinPerStep converts the old relative temperature slider to Kelvin.
const legacyKelvinPerStep = 25.0

// recipeFields is Recipe without its JSON methods, to avoid recursion.
type recipeFields Recipe

// legacyFields are top-level keys written by older versions.
type legacyFields struct {
	Temperature *float64 `json:"temperature"`
	Tint        *float64 `json:"tint"`
}

// MarshalJSON encodes the recipe in the current format.
func (r Recipe) MarshalJSON() ([]byte, error) {
	return json.Marshal(recipeFields(r.normalized()))
}

// UnmarshalJSON decodes a recipe, resolving missing fields to their defaults
// and migrating the legacy relative white balance keys.
func (r *Recipe) UnmarshalJSON(b []byte) error {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(b, &keys); err != nil {
		return fmt.Errorf("parse recipe: %w", err)
	}

	f := recipeFields(New())
	if err := json.Unmarshal(b, &f); err != nil {
		var te *json.UnmarshalTypeError
		if !errors.As(err, &te) {
			return fmt.Errorf("decode recipe: %w", err)
		}
		klog.Warningf("ignoring mistyped recipe field %q: %v", te.Field, err)
	}

	if _, ok := keys["whiteBalance"]; !ok {
		var old legacyFields
		if err := json.Unmarshal(b, &old); err != nil {
			klog.Warningf("ignoring malformed legacy white balance: %v", err)
		}
		f.WhiteBalance = migrateWhiteBalance(old)
	}

	*r = Recipe(f).normalized()
	return nil
}

func migrateWhiteBalance(old legacyFields) WhiteBalance {
	wb := defaultWhiteBalance()
	if old.Temperature == nil && old.Tint == nil {
		return wb
	}
	klog.V(1).Infof("migrating legacy white balance: temperature=%v tint=%v", old.Temperature, old.Tint)
	if old.Temperature != nil {
		wb.Temperature = NeutralTemperature + legacyKelvinPerStep*(*old.Temperature)
	}
	if old.Tint != nil {
		wb.Tint = *old.Tint
	}
	if wb != defaultWhiteBalance() {
		wb.Preset = Custom
	}
	return wb
}

// Decode parses a JSON encoded recipe.
func Decode(b []byte) (Recipe, error) {
	var r Recipe
	if err := json.Unmarshal(b, &r); err != nil {
		return New(), err
	}
	return r, nil
}

// Encode returns the JSON encoding of a recipe.
func Encode(r Recipe) ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

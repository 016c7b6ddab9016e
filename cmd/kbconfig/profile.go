package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"analogkb-go/types"
)

// Profile is the YAML key-settings file the tool saves and applies.
type Profile struct {
	Keys []KeyProfile `yaml:"keys"`
}

type KeyProfile struct {
	Key             int    `yaml:"key"`
	Code            uint8  `yaml:"code"`
	Type            string `yaml:"type"`
	ActuationPoint  uint8  `yaml:"actuation_point"`
	UpSensitivity   uint8  `yaml:"up_sensitivity"`
	DownSensitivity uint8  `yaml:"down_sensitivity"`
	Note            uint8  `yaml:"note"`
}

var keyTypeNames = map[types.KeyType]string{
	types.KeyDisabled:     "disabled",
	types.KeyCalibrate:    "calibrate",
	types.KeyThreshold:    "threshold",
	types.KeyRapidTrigger: "rapid_trigger",
}

func keyTypeName(t types.KeyType) string {
	if s, ok := keyTypeNames[t]; ok {
		return s
	}
	return "disabled"
}

func parseKeyType(s string) (types.KeyType, error) {
	for t, name := range keyTypeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown key type %q", s)
}

// fetchProfile pulls every key's settings off the device.
func fetchProfile(c *Client) (*Profile, error) {
	p := &Profile{}
	for i := 0; i < types.NumKeys; i++ {
		k, err := c.KeyConfig(i)
		if err != nil {
			return nil, err
		}
		note, err := c.Note(i)
		if err != nil {
			return nil, err
		}
		p.Keys = append(p.Keys, KeyProfile{
			Key:             i,
			Code:            k.KeyCode,
			Type:            keyTypeName(k.KeyType),
			ActuationPoint:  k.ActuationPoint,
			UpSensitivity:   k.RapidUpSensitivity,
			DownSensitivity: k.RapidDownSensitivity,
			Note:            note,
		})
	}
	return p, nil
}

// applyProfile writes a profile's entries to the device. Keys absent
// from the file keep their current settings.
func applyProfile(c *Client, p *Profile) error {
	for _, e := range p.Keys {
		if e.Key < 0 || e.Key >= types.NumKeys {
			return fmt.Errorf("profile key %d out of range", e.Key)
		}
		t, err := parseKeyType(e.Type)
		if err != nil {
			return err
		}
		if err := c.SetKeyConfig(e.Key, types.KeySwitchConfig{
			KeyCode:              e.Code,
			KeyType:              t,
			ActuationPoint:       e.ActuationPoint,
			RapidUpSensitivity:   e.UpSensitivity,
			RapidDownSensitivity: e.DownSensitivity,
		}); err != nil {
			return err
		}
		if err := c.SetNote(e.Key, e.Note); err != nil {
			return err
		}
	}
	return nil
}

func loadProfile(path string) (*Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func saveProfile(path string, p *Profile) error {
	raw, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

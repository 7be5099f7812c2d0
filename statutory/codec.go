package statutory

import (
	"encoding/json"
	"fmt"
)

// Encode serializes a record for a config_json column. The kind is
// stored alongside, not inside, the payload.
func Encode(cfg Config) ([]byte, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode %s %s: %w", cfg.Kind(), cfg.Header().ID, err)
	}
	return data, nil
}

// Decode is the inverse of Encode.
func Decode(kind Kind, data []byte) (Config, error) {
	var (
		cfg Config
		err error
	)
	switch kind {
	case KindProvidentFund:
		cfg, err = decodeAs[ProvidentFund](data)
	case KindStateInsurance:
		cfg, err = decodeAs[StateInsurance](data)
	case KindProfessionalTax:
		cfg, err = decodeAs[ProfessionalTax](data)
	case KindLabourWelfareFund:
		cfg, err = decodeAs[LabourWelfareFund](data)
	case KindBonus:
		cfg, err = decodeAs[Bonus](data)
	case KindGratuity:
		cfg, err = decodeAs[Gratuity](data)
	case KindLeaveEncashment:
		cfg, err = decodeAs[LeaveEncashment](data)
	default:
		return nil, fmt.Errorf("decode: unknown statutory kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return cfg, nil
}

func decodeAs[T Config](data []byte) (Config, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

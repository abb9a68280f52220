package vault

import (
	"encoding/json"
	"fmt"
	"sort"
)

// EncryptionMetaKey is the document key holding per-field envelopes.
const EncryptionMetaKey = "_encryption"

// FieldEnvelope holds what is needed to decrypt one field besides its
// ciphertext, which replaces the field value in the document.
type FieldEnvelope struct {
	IV      string `json:"iv"`
	AuthTag string `json:"auth_tag"`
	Salt    string `json:"salt,omitempty"`
}

// DecryptFieldsReport lists the fields DecryptFields could not open.
type DecryptFieldsReport struct {
	Decrypted []string
	Failed    map[string]error
}

// OK reports whether every field decrypted.
func (r DecryptFieldsReport) OK() bool {
	return len(r.Failed) == 0
}

// EncryptFields returns a copy of doc with each named field encrypted.
//
// Fields that are absent or nil are left untouched and get no envelope.
// Non-string values are JSON-encoded before encryption. The envelopes are
// stored under EncryptionMetaKey, merged with any already present.
func (v *Vault) EncryptFields(doc map[string]any, fields ...string) (map[string]any, error) {
	out := make(map[string]any, len(doc)+1)
	for k, val := range doc {
		out[k] = val
	}

	meta, err := fieldMeta(doc)
	if err != nil {
		return nil, err
	}

	for _, field := range fields {
		val, ok := doc[field]
		if !ok || val == nil {
			continue
		}
		plain, err := stringify(val)
		if err != nil {
			return nil, fmt.Errorf("encode field %s: %w", field, err)
		}
		rec, err := v.Encrypt([]byte(plain))
		if err != nil {
			return nil, fmt.Errorf("encrypt field %s: %w", field, err)
		}
		out[field] = rec.Ciphertext
		meta[field] = FieldEnvelope{IV: rec.IV, AuthTag: rec.AuthTag, Salt: rec.Salt}
	}

	if len(meta) > 0 {
		out[EncryptionMetaKey] = meta
	}
	return out, nil
}

// DecryptFields reverses EncryptFields.
//
// Each decrypted value is parsed as JSON, falling back to the raw string.
// A field that fails to decrypt keeps its ciphertext and its envelope, the
// failure is logged with the field name, and the remaining fields are still
// decrypted. The call never aborts; the report says what failed.
func (v *Vault) DecryptFields(doc map[string]any) (map[string]any, DecryptFieldsReport) {
	report := DecryptFieldsReport{Failed: map[string]error{}}

	out := make(map[string]any, len(doc))
	for k, val := range doc {
		out[k] = val
	}

	meta, err := fieldMeta(doc)
	if err != nil {
		v.logger.Error("field encryption metadata unreadable: %v", err)
		report.Failed[EncryptionMetaKey] = err
		return out, report
	}
	if len(meta) == 0 {
		return out, report
	}

	names := make([]string, 0, len(meta))
	for name := range meta {
		names = append(names, name)
	}
	sort.Strings(names)

	remaining := make(map[string]FieldEnvelope)
	for _, name := range names {
		env := meta[name]
		ciphertext, ok := doc[name].(string)
		if !ok {
			err := &DecryptionError{Reason: "field value is not ciphertext"}
			v.logger.Error("failed to decrypt field %s: %v", name, err)
			report.Failed[name] = err
			remaining[name] = env
			continue
		}

		plain, err := v.Decrypt(Record{Ciphertext: ciphertext, IV: env.IV, AuthTag: env.AuthTag, Salt: env.Salt})
		if err != nil {
			v.logger.Error("failed to decrypt field %s: %v", name, err)
			report.Failed[name] = err
			remaining[name] = env
			continue
		}

		var parsed any
		if err := json.Unmarshal(plain, &parsed); err != nil {
			out[name] = string(plain)
		} else {
			out[name] = parsed
		}
		report.Decrypted = append(report.Decrypted, name)
	}

	if len(remaining) > 0 {
		out[EncryptionMetaKey] = remaining
	} else {
		delete(out, EncryptionMetaKey)
	}
	return out, report
}

// fieldMeta reads the envelope map from doc. It accepts both the typed map
// produced by EncryptFields and the generic form left by a JSON round trip.
func fieldMeta(doc map[string]any) (map[string]FieldEnvelope, error) {
	raw, ok := doc[EncryptionMetaKey]
	if !ok || raw == nil {
		return map[string]FieldEnvelope{}, nil
	}
	if typed, ok := raw.(map[string]FieldEnvelope); ok {
		cp := make(map[string]FieldEnvelope, len(typed))
		for k, env := range typed {
			cp[k] = env
		}
		return cp, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", EncryptionMetaKey, err)
	}
	meta := map[string]FieldEnvelope{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode %s: %w", EncryptionMetaKey, err)
	}
	return meta, nil
}

func stringify(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

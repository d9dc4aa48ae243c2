// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package keywrapper

import (
	"context"

	"github.com/hashicorp/secretstorage/internal/errors"
	"github.com/hashicorp/secretstorage/internal/kdf"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// keyProtection records how an identity's data keys were wrapped, so a
// reopened wrapper unwraps with the parameters they were wrapped with even
// after the configured defaults change.
type keyProtection struct {
	Transformation string
	Derivation     kdf.Params
}

func (k keyProtection) marshal(ctx context.Context) ([]byte, error) {
	const op = "keywrapper.(keyProtection).marshal"
	s, err := structpb.NewStruct(map[string]any{
		"transformation": k.Transformation,
		"kdf_algorithm":  k.Derivation.Algorithm,
		"iterations":     k.Derivation.Iterations,
		"key_length":     k.Derivation.KeyLength,
		"salt_length":    k.Derivation.SaltLength,
		"memory":         int(k.Derivation.Memory),
		"threads":        int(k.Derivation.Threads),
	})
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Encoding))
	}
	b, err := proto.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Encoding))
	}
	return b, nil
}

func unmarshalKeyProtection(ctx context.Context, b []byte) (keyProtection, error) {
	const op = "keywrapper.unmarshalKeyProtection"
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err != nil {
		return keyProtection{}, errors.Wrap(ctx, err, op, errors.WithCode(errors.Format))
	}
	f := s.GetFields()
	num := func(name string) int { return int(f[name].GetNumberValue()) }
	kp := keyProtection{
		Transformation: f["transformation"].GetStringValue(),
		Derivation: kdf.Params{
			Algorithm:  f["kdf_algorithm"].GetStringValue(),
			Iterations: num("iterations"),
			KeyLength:  num("key_length"),
			SaltLength: num("salt_length"),
			Memory:     uint32(num("memory")),
			Threads:    uint8(num("threads")),
		},
	}
	if kp.Transformation == "" {
		return keyProtection{}, errors.New(ctx, errors.Format, op, "missing key wrap transformation")
	}
	if err := kp.Derivation.Validate(ctx); err != nil {
		return keyProtection{}, errors.Wrap(ctx, err, op, errors.WithCode(errors.Format))
	}
	return kp, nil
}

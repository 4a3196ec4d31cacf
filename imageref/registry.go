// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package imageref

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/sirupsen/logrus"

	"stackcraft.sh/log"
)

// Resolver returns the content digest of an image reference.
type Resolver interface {
	ResolveDigest(ctx context.Context, reference string) (string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, reference string) (string, error)

func (f ResolverFunc) ResolveDigest(ctx context.Context, reference string) (string, error) {
	return f(ctx, reference)
}

// Remote resolves digests against the registry using the default keychain.
var Remote Resolver = ResolverFunc(ResolveDigest)

// ResolveDigest queries a registry reference and returns its content digest.
// It uses the default keychain and does not require a local Docker daemon.
func ResolveDigest(ctx context.Context, reference string) (string, error) {
	refValue := strings.TrimSpace(reference)
	if refValue == "" {
		return "", fmt.Errorf("empty reference")
	}

	ref, err := name.ParseReference(refValue)
	if err != nil {
		return "", fmt.Errorf("parsing reference: %w", err)
	}

	opts := []remote.Option{
		remote.WithContext(ctx),
		remote.WithAuthFromKeychain(authn.DefaultKeychain),
	}

	headDesc, err := remote.Head(ref, opts...)
	if err == nil && headDesc != nil {
		return headDesc.Digest.String(), nil
	}

	log.G(ctx).WithFields(logrus.Fields{
		"ref":   ref.String(),
		"error": err,
	}).Debug("manifest HEAD failed, retrying with GET")

	getDesc, getErr := remote.Get(ref, opts...)
	if getErr != nil {
		if err != nil {
			return "", fmt.Errorf("head failed (%v); get failed: %w", err, getErr)
		}
		return "", fmt.Errorf("get failed: %w", getErr)
	}

	return getDesc.Digest.String(), nil
}

// Refresh resolves every reference through r and returns a new lock that
// extends base with the results.
func Refresh(ctx context.Context, r Resolver, base *Lock, refs ...string) (*Lock, error) {
	lock := base
	if lock == nil {
		lock = NewLock()
	}
	for _, ref := range refs {
		if err := CheckPinned(ref); err != nil {
			return nil, err
		}
		d, err := r.ResolveDigest(ctx, Parse(ref).Tagged())
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", ref, err)
		}
		if lock, err = lock.With(ref, d); err != nil {
			return nil, err
		}
		log.G(ctx).WithFields(logrus.Fields{
			"ref":    ref,
			"digest": d,
		}).Debug("locked image digest")
	}
	return lock, nil
}

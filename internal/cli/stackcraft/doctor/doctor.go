// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package doctor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/cobra"

	"stackcraft.sh/cmdfactory"
	"stackcraft.sh/config"
	"stackcraft.sh/imageref"
	"stackcraft.sh/internal/cli"
	"stackcraft.sh/internal/tableprinter"
	"stackcraft.sh/iostreams"
	"stackcraft.sh/policy"
)

const (
	statusPass = "PASS"
	statusWarn = "WARN"
	statusFail = "FAIL"
)

type DoctorOptions struct {
	Offline bool `long:"offline" usage:"Skip the registry check"`

	resolver imageref.Resolver
}

type checkResult struct {
	Name   string
	Status string
	Detail string
}

func NewCmd() *cobra.Command {
	cmd, err := cmdfactory.New(&DoctorOptions{}, cobra.Command{
		Short: "Run local environment checks",
		Use:   "doctor",
		Args:  cobra.NoArgs,
		Long:  "Check the configuration, policy document, image lock, registry access and advisor credentials.",
	})
	if err != nil {
		panic(err)
	}

	return cmd
}

func (opts *DoctorOptions) Run(ctx context.Context, _ []string) error {
	results := []checkResult{
		checkConfig(),
		checkPolicy(ctx),
		checkLock(ctx),
	}
	if !opts.Offline {
		resolver := opts.resolver
		if resolver == nil {
			resolver = imageref.Remote
		}
		results = append(results, checkRegistry(ctx, resolver))
	}
	results = append(results, checkAdvisor(ctx), checkSudo())

	ios := iostreams.G(ctx)
	table, err := tableprinter.NewTablePrinter(ctx)
	if err != nil {
		return err
	}

	cs := ios.ColorScheme()
	table.AddField("CHECK", cs.Bold)
	table.AddField("STATUS", cs.Bold)
	table.AddField("DETAILS", cs.Bold)
	table.EndRow()

	hasFailure := false
	for _, result := range results {
		if result.Status == statusFail {
			hasFailure = true
		}

		table.AddField(result.Name, nil)
		table.AddField(result.Status, statusColor(cs, result.Status))
		table.AddField(result.Detail, nil)
		table.EndRow()
	}

	if err := table.Render(ios.Out); err != nil {
		return err
	}

	if hasFailure {
		return fmt.Errorf("doctor checks failed")
	}

	return nil
}

func checkConfig() checkResult {
	path := os.Getenv(cli.ConfigFileEnv)
	if path == "" {
		path = config.DefaultPath()
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return checkResult{Name: "config", Status: statusPass, Detail: fmt.Sprintf("no file at %s, using defaults", path)}
	} else if err != nil {
		return checkResult{Name: "config", Status: statusFail, Detail: err.Error()}
	}
	return checkResult{Name: "config", Status: statusPass, Detail: fmt.Sprintf("loaded %s", path)}
}

func checkPolicy(ctx context.Context) checkResult {
	path := config.G(ctx).Policy
	if path == "" {
		return checkResult{Name: "policy", Status: statusPass, Detail: "built-in defaults"}
	}
	cfg, err := policy.LoadConfig(path)
	if err != nil {
		return checkResult{Name: "policy", Status: statusFail, Detail: err.Error()}
	}
	return checkResult{Name: "policy", Status: statusPass, Detail: fmt.Sprintf("%s (pinning: %s)", path, cfg.BaseImagePinning)}
}

func checkLock(ctx context.Context) checkResult {
	var (
		lock   *imageref.Lock
		err    error
		source = "embedded lock"
	)
	if path := config.G(ctx).LockFile; path != "" {
		source = path
		lock, err = imageref.LoadLock(path)
	} else {
		lock, err = imageref.DefaultLock()
	}
	if err != nil {
		return checkResult{Name: "image-lock", Status: statusFail, Detail: err.Error()}
	}

	missing := 0
	for _, img := range imageref.Default().All() {
		if _, ok := lock.Digest(img.Ref); !ok {
			missing++
		}
	}
	if missing > 0 {
		return checkResult{Name: "image-lock", Status: statusWarn, Detail: fmt.Sprintf("%s: %d catalog images without a digest; run stackcraft lock", source, missing)}
	}
	return checkResult{Name: "image-lock", Status: statusPass, Detail: fmt.Sprintf("%s: %d digests", source, lock.Len())}
}

func checkRegistry(ctx context.Context, r imageref.Resolver) checkResult {
	images := imageref.Default().All()
	if len(images) == 0 {
		return checkResult{Name: "registry", Status: statusWarn, Detail: "no catalog image to query"}
	}
	ref := images[0].Ref

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	d, err := r.ResolveDigest(ctx, ref)
	if err != nil {
		return checkResult{Name: "registry", Status: statusWarn, Detail: fmt.Sprintf("cannot resolve %s: %v", ref, err)}
	}
	return checkResult{Name: "registry", Status: statusPass, Detail: fmt.Sprintf("%s resolves to %s", ref, d)}
}

func checkAdvisor(ctx context.Context) checkResult {
	if config.G(ctx).Advisor.APIKey != "" || os.Getenv("GEMINI_API_KEY") != "" || os.Getenv("GOOGLE_API_KEY") != "" {
		return checkResult{Name: "advisor", Status: statusPass, Detail: fmt.Sprintf("API key set, model %s", config.G(ctx).Advisor.Model)}
	}
	return checkResult{Name: "advisor", Status: statusWarn, Detail: "no API key; --advise is unavailable"}
}

func checkSudo() checkResult {
	if config.InvokedViaSudo() {
		return checkResult{Name: "sudo", Status: statusWarn, Detail: "running via sudo; written files are handed back to the invoking user"}
	}
	return checkResult{Name: "sudo", Status: statusPass, Detail: "not running via sudo"}
}

func statusColor(cs *iostreams.ColorScheme, status string) func(string) string {
	switch status {
	case statusPass:
		return cs.Green
	case statusWarn:
		return cs.Yellow
	case statusFail:
		return cs.Red
	default:
		return nil
	}
}

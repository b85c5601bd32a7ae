package gcs

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"ssmdquery/logger"
)

// CLITransport shells out to the operator's gcloud toolchain: gsutil for
// listing and copying, gcloud for token minting. A missing binary or a
// timeout surfaces as an ordinary error that callers absorb as "no data".
type CLITransport struct {
	GsutilBin string
	GcloudBin string

	log *logger.Log
}

// NewCLITransport returns a transport using the gsutil and gcloud binaries
// found on PATH.
func NewCLITransport() *CLITransport {
	return &CLITransport{
		GsutilBin: "gsutil",
		GcloudBin: "gcloud",
		log:       logger.GetLogger(),
	}
}

func (t *CLITransport) List(ctx context.Context, remotePath string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, ListTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, t.GsutilBin, "ls", remotePath).Output()
	if err != nil {
		return nil, fmt.Errorf("gsutil ls %s: %w", remotePath, err)
	}

	var entries []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			entries = append(entries, line)
		}
	}
	return entries, nil
}

func (t *CLITransport) Fetch(ctx context.Context, remotePath, localPath string) error {
	ctx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, t.GsutilBin, "cp", remotePath, localPath).CombinedOutput()
	if err != nil {
		t.log.WithComponent("gcs_transport").WithFields(logger.Fields{
			"remote": remotePath,
			"output": strings.TrimSpace(string(out)),
		}).WithError(err).Warn("gsutil cp failed")
		return fmt.Errorf("gsutil cp %s: %w", remotePath, err)
	}
	return nil
}

func (t *CLITransport) Token(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, TokenTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, t.GcloudBin, "auth", "print-access-token").Output()
	if err != nil {
		return "", fmt.Errorf("gcloud auth print-access-token: %w", err)
	}
	token := strings.TrimSpace(string(out))
	if token == "" {
		return "", fmt.Errorf("gcloud returned an empty token")
	}
	return token, nil
}

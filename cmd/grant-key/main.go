// Package main provides a one-shot utility for accept-grant key generation.
//
// It emits the asymmetric keypair used to sign client quote-acceptance
// links.
package main

import (
	"os"

	"github.com/brokerwell/brokerwell/internal/platform/config"
	"github.com/brokerwell/brokerwell/internal/tools/grantkey"
)

func main() {
	if err := grantkey.Run(os.Stdout, nil); err != nil {
		config.Exitf("generate accept grant key: %v", err)
	}
}

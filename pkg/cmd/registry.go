// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/loomhq/loom/pkg/executors/aigenerate"
	"github.com/loomhq/loom/pkg/executors/formtrigger"
	"github.com/loomhq/loom/pkg/executors/httprequest"
	"github.com/loomhq/loom/pkg/executors/manualtrigger"
	"github.com/loomhq/loom/pkg/executors/paymenttrigger"
	"github.com/loomhq/loom/pkg/executors/webhooksend"
	"github.com/loomhq/loom/pkg/protocol"
	"github.com/loomhq/loom/pkg/registry"
)

// NewRegistry builds the node-kind registry with every native executor
// registered. The kind set is closed; stored graphs may only reference kinds
// wired here.
func NewRegistry(logger *slog.Logger, credentials protocol.CredentialStore) *registry.Registry {
	reg := registry.NewRegistry(logger)

	reg.Register(manualtrigger.NewExecutor())
	reg.Register(formtrigger.NewExecutor())
	reg.Register(paymenttrigger.NewExecutor())
	reg.Register(httprequest.NewExecutor(nil))
	reg.Register(aigenerate.NewExecutor(credentials, nil))
	reg.Register(webhooksend.NewExecutor(nil))

	return reg
}

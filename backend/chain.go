package backend

import (
	"go.uber.org/zap"
)

// BuildChain assembles the default fallback chain, fastest first. Ordering is
// significant: it is both the probe order and the runtime fallback order. The
// chain always terminates with the lexical backend, which cannot fail.
func BuildChain(settings Settings, enableGPU, enableSIMD bool, logger *zap.Logger) []Backend {
	var chain []Backend

	if enableGPU {
		chain = append(chain, newONNXBackend(KindONNXCUDA, settings, logger))
	}
	if enableSIMD {
		chain = append(chain, newONNXBackend(KindONNXSIMD, settings, logger))
	}
	chain = append(chain, newONNXBackend(KindONNXCPU, settings, logger))
	chain = append(chain, NewHash(settings, logger))

	if settings.RemoteBaseURL != "" {
		chain = append(chain, NewRemote(settings, logger))
	}

	return append(chain, NewLexical(settings.Dimensions))
}

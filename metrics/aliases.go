package metrics

import "github.com/tradecore/go-marketstore-common/logger"

type Logger = logger.Logger

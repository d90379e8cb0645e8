package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	// General validation
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidFormat:   "Invalid data format",
	CodeInvalidState:    "Invalid state for this operation",
	CodeNotFound:        "Resource not found",
	CodeValidationError: "Validation error",

	// Configuration
	CodeConfigurationError: "Configuration error",

	// External service errors
	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeServiceUnavailable:   "Service temporarily unavailable",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	// System errors
	CodeInternalError: "Internal server error",
	CodeUnknownError:  "An unknown error occurred",

	// Connector errors
	CodeBinanceConnectionFailed: "Failed to connect to Binance API",
	CodeBinanceAPIError:         "Binance API error",

	// Candle query errors
	CodeTickerNotInMemory:     "Ticker has no data in the in-memory buffer",
	CodeNoCandlesForTicker:    "No candles recorded for this ticker",
	CodeTooOldTimestamp:       "Requested timestamp predates the oldest buffered candle",
	CodeConversionNotPossible: "No candle available from memory or durable storage",
	CodeQuotesOutdated:        "Latest available candle is older than the staleness window",
	CodeStorageUnavailable:    "Durable store is unreachable",
}

package withdrawal

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLog captures the outcome of a single withdrawal operation.
type OperationLog struct {
	Operation string
	UserID    string
	RequestID string
	Amount    int64
	Status    string
	Error     string
}

// OperationLogger receives a record for every service operation.
type OperationLogger interface {
	LogOperation(entry OperationLog)
}

// WithOperationLogger attaches an operation logger to the service.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithFeeBasisPoints sets the flat withdrawal fee in basis points of the
// requested amount. The default is zero.
func WithFeeBasisPoints(basisPoints int64) ServiceOption {
	return func(service *Service) {
		if basisPoints >= 0 {
			service.feeBasisPoints = basisPoints
		}
	}
}

// WithMinimumWithdrawal overrides the platform minimum withdrawal amount.
func WithMinimumWithdrawal(cents int64) ServiceOption {
	return func(service *Service) {
		if cents > 0 {
			service.minWithdrawalCents = cents
		}
	}
}

package core

// Environment selects the runtime profile a process was started with; the
// log level and output format follow it.
type Environment string

const (
	DevelopmentEnv Environment = "development"
	ProductionEnv  Environment = "production"
)

func (e Environment) IsDevelopment() bool {
	return e == DevelopmentEnv
}

func (e Environment) IsProduction() bool {
	return e == ProductionEnv
}

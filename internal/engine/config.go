package engine

// Config is the engine's connection configuration (§6 "Engine
// configuration"). It is consumed at construction time and never persisted
// by the engine itself.
type Config struct {
	Host string
	Port uint16

	Nickname        string
	DefaultChannel  string
	ServerPassword  string
	HWID            string

	// RelayURL and RelayToken select the relay transport when both are
	// non-empty; otherwise the engine dials direct UDP.
	RelayURL   string
	RelayToken string

	// StrictLicense controls the §9 open-question policy knob: when true,
	// a license chain that fails to derive a server public key aborts the
	// handshake with a Protocol error instead of falling back to a random
	// key and emitting a Warning event.
	StrictLicense bool
}

func (c Config) usesRelay() bool {
	return c.RelayURL != "" && c.RelayToken != ""
}

func (c Config) hwid() string {
	if c.HWID != "" {
		return c.HWID
	}
	return "0000000000000000000000000000000000000000000000000000000000000000"
}

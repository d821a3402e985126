package cli

var (
	ApplyOverrides = applyOverrides
	WriteSummary   = writeSummary
)

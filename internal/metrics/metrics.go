package metrics

import "expvar"

// 结算核心的运行指标。通过 /debug/vars 暴露。
var (
	TradesSettled        = expvar.NewInt("trades_settled")
	TradesRejected       = expvar.NewInt("trades_rejected")
	TradesReverted       = expvar.NewInt("trades_reverted")
	TradesStuck          = expvar.NewInt("trades_stuck")
	CompensationRetries  = expvar.NewInt("compensation_retries")
	CompensationFailures = expvar.NewInt("compensation_failures")
	ReversalRecords      = expvar.NewInt("reversal_records")
	ReconEnqueued        = expvar.NewInt("recon_enqueued")
	ReconResolved        = expvar.NewInt("recon_resolved")
)

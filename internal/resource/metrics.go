package resource

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// hookFailuresTotal — ошибки хуков по коллекции и событию (конфликты включены).
var hookFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cm_hook_failures_total",
		Help: "Количество ошибок хуков ссылочной целостности.",
	},
	[]string{"collection", "event"},
)

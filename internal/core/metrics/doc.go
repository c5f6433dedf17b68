// Package metrics 提供 Prometheus 指标收集
//
// 引擎与传输在运行时记录事件（消息收发、同步调用耗时、复制结果），
// 状态类指标（路由表大小、存储条目数等）通过 GaugeFunc 在采集时拉取。
//
//	m := metrics.New()
//	m.MessageSent("Ping", 42)
//	_ = m.GaugeFunc("routing_contacts", "Contacts in the routing table.", func() float64 {
//	    return float64(table.Size())
//	})
//	http.Handle("/metrics", m.Handler())
package metrics

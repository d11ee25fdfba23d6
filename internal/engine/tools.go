package engine

import "github.com/MRamiBalles/uplink-sim/server/internal/domain"

// BaseCPUSpeed is the gateway CPU speed at which tool base times apply.
// A gateway twice as fast finishes every tool in half the ticks.
const BaseCPUSpeed = 60

// Base tick costs at BaseCPUSpeed.
const (
	ticksPerSizeCopy    = 45
	ticksPerSizeDelete  = 9
	ticksPerSizeDecrypt = 90
	ticksLogDelete      = 60
	ticksLogUndelete    = 60

	// Countermeasure costs are divided by the tool version.
	ticksMonitorBypass   = 50
	ticksFirewallDisable = 80
	ticksProxyDisable    = 100
)

// SoftwareItem is an entry of the software sales catalog.
type SoftwareItem struct {
	Tool        domain.Tool `json:"tool"`
	Version     int         `json:"version"`
	Price       int64       `json:"price"`
	Size        int         `json:"size"`
	Description string      `json:"description"`
}

// HardwareItem is an entry of the hardware sales catalog.
type HardwareItem struct {
	Name     string `json:"name"`
	CPUSpeed int    `json:"cpu_speed"`
	Price    int64  `json:"price"`
}

var softwareCatalog = []SoftwareItem{
	{domain.ToolPasswordBreaker, 1, 1500, 2, "Breaks password screens one character at a time"},
	{domain.ToolFileCopier, 1, 100, 1, "Copies a remote file to your gateway"},
	{domain.ToolFileDeleter, 1, 100, 1, "Deletes a remote file"},
	{domain.ToolDecrypter, 1, 800, 2, "Removes encryption from a remote file"},
	{domain.ToolLogDeleter, 1, 500, 1, "Deletes the oldest visible access log"},
	{domain.ToolLogDeleter, 2, 1000, 1, "Deletes a chosen access log"},
	{domain.ToolLogDeleter, 3, 2000, 1, "Deletes every visible access log"},
	{domain.ToolLogDeleter, 4, 4000, 1, "Deletes every access log, hidden ones included"},
	{domain.ToolLogUnDeleter, 1, 5000, 1, "Restores every deleted access log"},
	{domain.ToolTraceTracker, 1, 300, 1, "Reports trace progress while connected"},
	{domain.ToolMonitorBypass, 1, 10000, 1, "Disables the monitors of a remote system"},
	{domain.ToolMonitorBypass, 2, 12000, 1, "Disables the monitors of a remote system"},
	{domain.ToolMonitorBypass, 3, 16000, 1, "Disables the monitors of a remote system"},
	{domain.ToolMonitorBypass, 4, 20000, 1, "Disables the monitors of a remote system"},
	{domain.ToolMonitorBypass, 5, 25000, 1, "Disables the monitors of a remote system"},
	{domain.ToolFirewallDisable, 1, 2000, 1, "Disables the firewall of a remote system"},
	{domain.ToolFirewallDisable, 2, 3000, 1, "Disables the firewall of a remote system"},
	{domain.ToolFirewallDisable, 3, 4000, 1, "Disables the firewall of a remote system"},
	{domain.ToolFirewallDisable, 4, 6000, 2, "Disables the firewall of a remote system"},
	{domain.ToolFirewallDisable, 5, 8000, 3, "Disables the firewall of a remote system"},
	{domain.ToolProxyDisable, 1, 3000, 1, "Disables the proxy of a remote system"},
	{domain.ToolProxyDisable, 2, 4000, 1, "Disables the proxy of a remote system"},
	{domain.ToolProxyDisable, 3, 6000, 1, "Disables the proxy of a remote system"},
	{domain.ToolProxyDisable, 4, 8000, 2, "Disables the proxy of a remote system"},
	{domain.ToolProxyDisable, 5, 10000, 3, "Disables the proxy of a remote system"},
}

var hardwareCatalog = []HardwareItem{
	{"CPU ( 60 Ghz )", 60, 1000},
	{"CPU ( 80 Ghz )", 80, 1500},
	{"CPU ( 100 Ghz )", 100, 3000},
	{"CPU ( 120 Ghz )", 120, 5000},
	{"CPU ( 150 Ghz )", 150, 8000},
}

// knownTool reports whether the catalog sells any version of tool.
func knownTool(tool domain.Tool) bool {
	for _, item := range softwareCatalog {
		if item.Tool == tool {
			return true
		}
	}
	return false
}

// cpuModifier scales base ticks by gateway speed.
func cpuModifier(cpuSpeed int) float64 {
	if cpuSpeed <= 0 {
		cpuSpeed = BaseCPUSpeed
	}
	return float64(BaseCPUSpeed) / float64(cpuSpeed)
}

// countermeasure maps a security disabling tool to the kind of system it switches off.
func countermeasure(tool domain.Tool) (domain.SecurityKind, bool) {
	switch tool {
	case domain.ToolMonitorBypass:
		return domain.SecurityMonitor, true
	case domain.ToolFirewallDisable:
		return domain.SecurityFirewall, true
	case domain.ToolProxyDisable:
		return domain.SecurityProxy, true
	}
	return 0, false
}

func findSoftware(tool domain.Tool, version int) (SoftwareItem, bool) {
	for _, item := range softwareCatalog {
		if item.Tool == tool && item.Version == version {
			return item, true
		}
	}
	return SoftwareItem{}, false
}

func findHardware(cpuSpeed int) (HardwareItem, bool) {
	for _, item := range hardwareCatalog {
		if item.CPUSpeed == cpuSpeed {
			return item, true
		}
	}
	return HardwareItem{}, false
}

package hexlicense

import (
	"bytes"
	"context"
	"encoding/csv"
	"net"
	"os/exec"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"time"
)

// HardwareProvider supplies the optional fingerprint attributes whose source
// depends on host capabilities.
type HardwareProvider interface {
	// MACAddresses returns usable link-layer addresses in a stable order.
	MACAddresses() ([]string, error)
	// TotalMemory returns physical memory in bytes, or false when unknown.
	TotalMemory() (uint64, bool)
}

// nativeProvider reads interfaces and memory through Go and system calls.
type nativeProvider struct{}

func (nativeProvider) MACAddresses() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var macs []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if mac := iface.HardwareAddr.String(); usableMAC(mac) {
			macs = append(macs, mac)
		}
	}
	sort.Strings(macs)
	return macs, nil
}

func (nativeProvider) TotalMemory() (uint64, bool) {
	return totalMemory()
}

// CommandRunner executes an OS command and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

const commandTimeout = 5 * time.Second

var (
	ifconfigMAC = regexp.MustCompile(`ether\s+([0-9A-Fa-f]{2}(?::[0-9A-Fa-f]{2}){5})`)
	getmacMAC   = regexp.MustCompile(`^[0-9A-Fa-f]{2}(?:[-:][0-9A-Fa-f]{2}){5}$`)
)

// commandProvider enumerates MAC addresses by parsing `getmac` on Windows and
// `ifconfig -a` elsewhere. It never knows total memory.
type commandProvider struct {
	goos string
	run  CommandRunner
}

func (p commandProvider) MACAddresses() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var macs []string
	if p.goos == "windows" {
		out, err := p.run(ctx, "getmac", "/v", "/fo", "csv")
		if err != nil {
			return nil, err
		}
		macs = parseGetmac(out)
	} else {
		out, err := p.run(ctx, "ifconfig", "-a")
		if err != nil {
			out, err = p.run(ctx, "/sbin/ifconfig", "-a")
			if err != nil {
				return nil, err
			}
		}
		macs = parseIfconfig(out)
	}
	sort.Strings(macs)
	return macs, nil
}

func (commandProvider) TotalMemory() (uint64, bool) {
	return 0, false
}

// parseGetmac reads the third column of `getmac /v /fo csv`, skipping the header.
func parseGetmac(out []byte) []string {
	r := csv.NewReader(bytes.NewReader(out))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil
	}
	var macs []string
	for i, row := range rows {
		if i == 0 || len(row) < 3 {
			continue
		}
		mac := strings.TrimSpace(row[2])
		if getmacMAC.MatchString(mac) && usableMAC(mac) {
			macs = append(macs, mac)
		}
	}
	return macs
}

func parseIfconfig(out []byte) []string {
	var macs []string
	for _, m := range ifconfigMAC.FindAllSubmatch(out, -1) {
		if mac := string(m[1]); usableMAC(mac) {
			macs = append(macs, mac)
		}
	}
	return macs
}

// usableMAC rejects empty and all-zero addresses in either separator style.
func usableMAC(mac string) bool {
	if mac == "" {
		return false
	}
	return strings.Trim(mac, "0:-") != ""
}

// newHardwareProvider selects the provider variant once from capabilities.
func newHardwareProvider(caps Capabilities, run CommandRunner) HardwareProvider {
	if caps.HasNetInfo {
		return nativeProvider{}
	}
	if run == nil {
		run = execRunner
	}
	return commandProvider{goos: runtime.GOOS, run: run}
}

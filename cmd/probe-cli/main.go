// stlink: Host driver and tooling for USB in-circuit debug probes
// Copyright (C) 2026  Guillermo Perry
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/gousb"
	"golang.org/x/crypto/blake2b"

	"stlink/internal/config"
	"stlink/internal/probe"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

// keyMap documents the bindings View renders in its footer, rather than
// leaving that line to drift out of sync with Update's key switch by hand.
type keyMap struct {
	Refresh key.Binding
	Halt    key.Binding
	Run     key.Binding
	Copy    key.Binding
	Quit    key.Binding
}

var keys = keyMap{
	Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh registers")),
	Halt:    key.NewBinding(key.WithKeys("h"), key.WithHelp("h", "halt")),
	Run:     key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "run")),
	Copy:    key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "copy checksum")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

func footer() string {
	bindings := []key.Binding{keys.Refresh, keys.Halt, keys.Run, keys.Copy, keys.Quit}
	parts := make([]string, len(bindings))
	for i, b := range bindings {
		parts[i] = b.Help().Key + ": " + b.Help().Desc
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += "  " + p
	}
	return out
}

type model struct {
	sess *probe.Session
	err  error

	mode    probe.DebugSubMode
	version probe.VersionInfo
	regs    probe.CoreRegisters
	dumpSum string

	status string
}

type regsLoadedMsg struct {
	regs probe.CoreRegisters
	err  error
}

func (m model) Init() tea.Cmd { return nil }

func (m model) loadRegs() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		regs, err := m.sess.ReadCoreRegs(ctx)
		return regsLoadedMsg{regs: regs, err: err}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "r":
			return m, m.loadRegs()
		case "c":
			if m.dumpSum != "" {
				_ = clipboard.WriteAll(m.dumpSum)
				m.status = "checksum copied to clipboard"
			}
			return m, nil
		case "h":
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := m.sess.Halt(ctx); err != nil {
				m.err = err
			} else {
				m.status = "core halted"
			}
			return m, nil
		case "g":
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := m.sess.Run(ctx); err != nil {
				m.err = err
			} else {
				m.status = "core running"
			}
			return m, nil
		}
	case regsLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.regs = msg.regs
			sum := blake2b.Sum256(encodeRegs(msg.regs))
			m.dumpSum = fmt.Sprintf("%x", sum)
			m.status = "registers refreshed"
		}
		return m, nil
	}
	return m, nil
}

func encodeRegs(r probe.CoreRegisters) []byte {
	buf := make([]byte, 0, 4*19)
	var tmp [4]byte
	for _, v := range r.R {
		probe.WriteU32(tmp[:], v, probe.LittleEndian)
		buf = append(buf, tmp[:]...)
	}
	probe.WriteU32(tmp[:], r.XPSR, probe.LittleEndian)
	buf = append(buf, tmp[:]...)
	return buf
}

func (m model) View() string {
	out := headerStyle.Render("probe-cli") + "\n\n"
	out += fmt.Sprintf("generation: %d   jtag rev: %d   swim rev: %d\n", m.version.Gen, m.version.JTAG, m.version.SWIM)
	out += fmt.Sprintf("mode: %v\n\n", m.mode)

	out += "registers:\n"
	for i, v := range m.regs.R {
		out += fmt.Sprintf("  r%-2d = %#08x\n", i, v)
	}
	out += fmt.Sprintf("  xpsr = %#08x\n\n", m.regs.XPSR)

	if m.dumpSum != "" {
		out += dimStyle.Render("checksum: "+m.dumpSum) + "\n"
	}
	if m.err != nil {
		out += errStyle.Render("error: "+m.err.Error()) + "\n"
	} else if m.status != "" {
		out += okStyle.Render(m.status) + "\n"
	}

	out += "\n" + dimStyle.Render(footer())
	return out
}

func main() {
	timeoutMS := flag.Int("timeout-ms", 0, "command timeout in milliseconds (default from config)")
	modeFlag := flag.String("mode", "", "debug submode: swd or jtag (default from config)")
	underReset := flag.Bool("connect-under-reset", false, "assert SRST before entering debug mode")
	flag.Parse()

	cfg, err := config.LoadProbeConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	opts := probe.DefaultOptions()
	if cfg.TimeoutMS > 0 {
		opts.Timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	}
	if *timeoutMS > 0 {
		opts.Timeout = time.Duration(*timeoutMS) * time.Millisecond
	}
	if cfg.VID != 0 {
		opts.VID = gousb.ID(cfg.VID)
	}
	if cfg.PID != 0 {
		opts.PID = gousb.ID(cfg.PID)
	}
	opts.ConnectUnderReset = cfg.ConnectUnderReset || *underReset

	mode := cfg.Mode
	if *modeFlag != "" {
		mode = *modeFlag
	}
	if mode == "jtag" {
		opts.Mode = probe.DebugSubModeJTAG
	} else {
		opts.Mode = probe.DebugSubModeSWD
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	sess, err := probe.Open(ctx, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open probe: %v\n", err)
		os.Exit(1)
	}
	defer sess.Close()

	m := model{sess: sess, mode: opts.Mode, version: sess.Version()}
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "tui error: %v\n", err)
		os.Exit(1)
	}
}

// Package pkg provides the core libraries for pcigraph.
//
// # Overview
//
// pcigraph rebuilds the PCI bus topology of a machine from plain-text
// enumeration output and turns it into a Graphviz document. The packages
// are organized along the data flow:
//
//	lspci -nnvv text            dmidecode text
//	         ↓                        ↓
//	      [pci] package           [dmi] package
//	         ↓                        ↓
//	    [topology] package  (build tree, annotate slots)
//	         ↓
//	      [dot] package  (emit DOT, render SVG/PNG)
//
// [pipeline] orchestrates the full transform, [diag] collects the non-fatal
// diagnostics every stage produces, [cache] stores rendered artifacts by
// content hash, and [config] loads the optional TOML configuration.
package pkg

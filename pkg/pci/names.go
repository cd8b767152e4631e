package pci

// shortNames maps (vendor, device) ID pairs to compact display names for
// hardware that shows up constantly in server topologies. The full lspci
// name is often too long for a graph node; these keep diagrams readable.
var shortNames = map[[2]uint16]string{
	{0x1000, 0x005d}: "MegaRAID 3108",
	{0x1000, 0x00b2}: "switch mgmt",
	{0x1022, 0x1485}: "AMD SPP",
	{0x1022, 0x1486}: "AMD PSPCPP",
	{0x1022, 0x1487}: "AMD HD Audio",
	{0x1022, 0x148a}: "dummy function",
	{0x1022, 0x148c}: "AMD XHCI",
	{0x1022, 0x1498}: "AMD PTDMA",
	{0x1022, 0x149c}: "AMD XHCI",
	{0x1022, 0x7901}: "AMD SATA",
	{0x102b, 0x0522}: "Matrox VGA",
	{0x102b, 0x0534}: "Matrox VGA",
	{0x102b, 0x0536}: "Matrox VGA",
	{0x10de, 0x0e0f}: "NVIDIA GK208 HDMI/DP Audio",
	{0x10de, 0x128b}: "NVIDIA GT 710",
	{0x10de, 0x1af1}: "A100 NVSwitch",
	{0x10de, 0x20b0}: "A100 SXM4 40GB",
	{0x10de, 0x22a3}: "H100 NVSwitch",
	{0x10de, 0x2330}: "H100 SXM5 80GB",
	{0x10de, 0x2335}: "H200 SXM5 141GB",
	{0x10de, 0x2901}: "B200 SXM6 192GB",
	{0x10ec, 0x8125}: "Realtek RTL8125 2.5GbE",
	{0x1344, 0x51c3}: "Micron NVMe",
	{0x144d, 0xa808}: "Samsung NVMe",
	{0x144d, 0xa80a}: "Samsung NVMe",
	{0x144d, 0xa80c}: "Samsung NVMe",
	{0x144d, 0xa824}: "Samsung NVMe",
	{0x144d, 0xa825}: "Samsung NVMe",
	{0x14e4, 0x165f}: "Broadcom BCM5720",
	{0x15b3, 0x1019}: "MT28800 ConnectX-5 Ex ETH",
	{0x15b3, 0x101b}: "MT28908 ConnectX-6 IB",
	{0x15b3, 0x101d}: "MT2892 ConnectX-6 Dx ETH",
	{0x15b3, 0x101e}: "ConnectX-7 IB VF",
	{0x15b3, 0x1021}: "MT2910 ConnectX-7 IB",
	{0x15b3, 0xa2dc}: "MT43244 BlueField-3",
	{0x15b3, 0xc2d5}: "MT43244 BlueField-3 mgmt",
	{0x1912, 0x0014}: "Renesas USB3",
	{0x1a03, 0x2000}: "ASPEED VGA",
	{0x1a03, 0x2402}: "ASPEED IPMI",
	{0x1b4b, 0x2241}: "Marvell NVMe",
	{0x1b4b, 0x9485}: "Marvell SAS/SATA",
	{0x8086, 0x1563}: "Intel X550",
	{0x8086, 0x15f3}: "Intel I225-V",
	{0x8086, 0x2723}: "Intel Wi-Fi 6 AX200",
}

// ShortName returns the compact display name for the device, or "" when the
// ID pair is not in the table.
func (d *Device) ShortName() string {
	return shortNames[[2]uint16{d.VendorID, d.DeviceID}]
}

// DisplayName returns the best label text for the device: the short name
// when known, otherwise the model portion of the lspci name, otherwise the
// raw vendor:device IDs.
func (d *Device) DisplayName() string {
	if s := d.ShortName(); s != "" {
		return s
	}
	if m := d.Model(); m != "" {
		return m
	}
	if d.Name != "" {
		return d.Name
	}
	return d.Addr.String()
}

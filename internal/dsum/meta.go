package dsum

import (
	"strconv"
	"strings"
)

// Metadata keys recorded with every snapshot.
const (
	MetaBlocksFlag    = "BLKnFSOBJ"
	MetaDeviceFlag    = "DEVnFSOBJ"
	MetaExtensionFlag = "EXTnFSOBJ"

	MetaChecksum      = "csum"
	MetaEngine        = "engine"
	MetaEngineVersion = "engine version"
	MetaRunID         = "runID"
	MetaHostID        = "hostID"
	MetaDircsumMode   = "dircsumMode"
	MetaOutputFile    = "outDBfile"
	MetaPriorFile     = "oldFileFile"
	MetaPriorSize     = "oldFileSize"
	MetaPriorMtime    = "oldFileMtime"
	MetaPriorCtime    = "oldFileCtime"
	MetaProgress      = "printProgress"
	MetaScanRoot      = "dirToScan"
	MetaScanRootDir   = "dirToScanPfx"
	MetaScanRootName  = "dirToScanNam"

	MetaUsersStart   = "dumpStart:users"
	MetaUsersFinish  = "dumpFinish:users"
	MetaGroupsStart  = "dumpStart:groups"
	MetaGroupsFinish = "dumpFinish:groups"
	MetaScanStart    = "scanStart"
	MetaScanFinish   = "scanFinish"
	MetaFilesStart   = "dumpAndCsumStart:files"
	MetaFilesFinish  = "dumpAndCsumFinish:files"
	MetaProcessStart = "processStart"
	MetaProcessEnd   = "processEnd"

	MetaObjects            = "objCnt"
	MetaRegularFiles       = "cntRegFile"
	MetaDirectories        = "cntDirectories"
	MetaSymlinks           = "cntSymLinks"
	MetaOther              = "cntFunnyFiles"
	MetaFingerprinted      = "cntCsumFiles"
	MetaBytesFingerprinted = "cntCsumByte"
	MetaBytes1K            = "cntCsumByte1KC"
	MetaReused             = "checksumAvoided"
	MetaScanErrors         = "cntScanErrors"
)

// Engine identifies this scanner in snapshot metadata.
const (
	Engine        = "go"
	EngineVersion = "2026-10-19"
)

// FormatBool renders a metadata boolean.
func FormatBool(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

// ParseBool reads a metadata boolean. Anything starting with Y or T is true.
func ParseBool(s string) bool {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.HasPrefix(s, "T") || strings.HasPrefix(s, "Y")
}

// FeaturesFromMeta reads the optional-column flags from snapshot metadata.
// A snapshot without flags gets DefaultFeatures.
func FeaturesFromMeta(meta map[string]string) Features {
	f := DefaultFeatures()
	if v, ok := meta[MetaBlocksFlag]; ok {
		f.Blocks = ParseBool(v)
	}
	if v, ok := meta[MetaDeviceFlag]; ok {
		f.Device = ParseBool(v)
	}
	if v, ok := meta[MetaExtensionFlag]; ok {
		f.Extension = ParseBool(v)
	}
	return f
}

// MetaInt reads an integer metadata value, returning 0 when absent or malformed.
func MetaInt(meta map[string]string, key string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(meta[key]), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

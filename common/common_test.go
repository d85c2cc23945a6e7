package common

import (
	"testing"
)

func checkKeyValue(t *testing.T, format map[string]string, key, value string) {
	if v, ok := format[key]; !ok {
		t.Errorf("key %s not found", key)
	} else if v != value {
		t.Errorf("expected %s for key %s, got %s", value, key, v)
	}
}

func TestInfo(t *testing.T) {
	if _, err := Info("S2B_MSIL1C_20190108T104429_N0207_R008_T32UNF_20190108T12485"); err == nil {
		t.Errorf("too short product identifier")
	}
	if format, err := Info("S2B_MSIL1C_20190108T104429_N0207_R008_T32UNF_20190108T124859.SAFE"); err != nil {
		t.Errorf("%s", err.Error())
	} else {
		checkKeyValue(t, format, "MISSION_ID", "S2B")
		checkKeyValue(t, format, "PRODUCT_LEVEL", "L1C")
		checkKeyValue(t, format, "DATE", "20190108")
		checkKeyValue(t, format, "YEAR", "2019")
		checkKeyValue(t, format, "MONTH", "01")
		checkKeyValue(t, format, "DAY", "08")
		checkKeyValue(t, format, "TIME", "104429")
		checkKeyValue(t, format, "HOUR", "10")
		checkKeyValue(t, format, "MINUTE", "44")
		checkKeyValue(t, format, "SECOND", "29")
		checkKeyValue(t, format, "PDGS", "0207")
		checkKeyValue(t, format, "ORBIT", "008")
		checkKeyValue(t, format, "TILE", "T32UNF")
		checkKeyValue(t, format, "UTM_ZONE", "32")
		checkKeyValue(t, format, "LATITUDE_BAND", "U")
		checkKeyValue(t, format, "GRID_SQUARE", "NF")
	}
	if _, err := Info("S1A_IW_SLC__1SDV_20190115T170106_20190115T170133_025491_02D361_7F7"); err == nil {
		t.Errorf("too short product identifier")
	}
	if format, err := Info("S1A_IW_SLC__1SDV_20190115T170106_20190115T170133_025491_02D361_7F7C"); err != nil {
		t.Errorf("%s", err.Error())
	} else {
		checkKeyValue(t, format, "MISSION_ID", "S1A")
		checkKeyValue(t, format, "MODE", "IW")
		checkKeyValue(t, format, "PRODUCT_TYPE", "SLC")
		checkKeyValue(t, format, "RESOLUTION", "_")
		checkKeyValue(t, format, "PROCESSING_LEVEL", "1")
		checkKeyValue(t, format, "PRODUCT_CLASS", "S")
		checkKeyValue(t, format, "POLARISATION", "DV")
		checkKeyValue(t, format, "DATE", "20190115")
		checkKeyValue(t, format, "TIME", "170106")
		checkKeyValue(t, format, "ORBIT", "025491")
		checkKeyValue(t, format, "MISSION", "02D361")
		checkKeyValue(t, format, "UNIQUE_ID", "7F7C")
	}
	if _, err := Info("LC08_L1TP_190026_20200101_20200113_01_T1"); err == nil {
		t.Errorf("unsupported constellation")
	}
}

func TestFormatBrackets(t *testing.T) {
	format, err := Info("S2B_MSIL1C_20190108T104429_N0207_R008_T32UNF_20190108T124859")
	if err != nil {
		t.Fatalf("%v", err)
	}
	pattern := "tiles/{UTM_ZONE}/{LATITUDE_BAND}/{GRID_SQUARE}/{YEAR}/{SCENE}.zip"
	expected := "tiles/32/U/NF/2019/S2B_MSIL1C_20190108T104429_N0207_R008_T32UNF_20190108T124859.zip"
	if got := FormatBrackets(pattern, format); got != expected {
		t.Errorf("expected %s, got %s", expected, got)
	}
}

func TestStatusTransitions(t *testing.T) {
	if !StatusPENDING.CanTransition(StatusINPROGRESS) {
		t.Errorf("PENDING must be able to move to INPROGRESS")
	}
	if !StatusINPROGRESS.CanTransition(StatusDONE) {
		t.Errorf("INPROGRESS must be able to move to DONE")
	}
	if !StatusINPROGRESS.CanTransition(StatusFAILED) {
		t.Errorf("INPROGRESS must be able to move to FAILED")
	}
	if StatusDONE.CanTransition(StatusFAILED) {
		t.Errorf("DONE is terminal")
	}
	if StatusFAILED.CanTransition(StatusPENDING) {
		t.Errorf("FAILED is terminal")
	}
	if StatusINPROGRESS.CanTransition(StatusPENDING) {
		t.Errorf("statuses only move forward")
	}
}

func TestStatusString(t *testing.T) {
	if s, err := StatusString("INPROGRESS"); err != nil || s != StatusINPROGRESS {
		t.Errorf("expected INPROGRESS, got %v (%v)", s, err)
	}
	if _, err := StatusString("UNKNOWN"); err == nil {
		t.Errorf("expected an error")
	}
}

package conversation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const specificationSchemaURL = "bot_specification.json"

const specificationSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["name", "base_coin", "quote_coin", "trade_type", "trading_capital_usd",
               "leverage", "strategy_type", "timeframe", "risk_level", "advanced_settings"],
  "properties": {
    "name": {"type": "string", "minLength": 1, "maxLength": 100},
    "description": {"type": "string"},
    "base_coin": {"type": "string", "minLength": 2, "maxLength": 10},
    "quote_coin": {"const": "USDT"},
    "trade_type": {"enum": ["spot", "futures"]},
    "trading_capital_usd": {"type": "integer", "minimum": 1000, "maximum": 1000000},
    "leverage": {"type": "number", "minimum": 1, "maximum": 20},
    "strategy_type": {"enum": ["momentum", "scalping", "mean_reversion", "grid", "dca", "swing"]},
    "timeframe": {"enum": ["1m", "5m", "15m", "1h", "4h", "1d"]},
    "risk_level": {"enum": ["low", "medium", "high"]},
    "advanced_settings": {
      "type": "object",
      "required": ["risk_management", "order_management"],
      "properties": {
        "entry_conditions": {"type": "array", "items": {"type": "string"}},
        "exit_conditions": {"type": "array", "items": {"type": "string"}},
        "technical_indicators": {
          "type": "object",
          "properties": {
            "primary": {"type": "string"},
            "interval": {"enum": ["1m", "5m", "15m", "1h", "4h", "1d"]},
            "signal_type": {"type": "string"}
          }
        },
        "grid_settings": {
          "type": ["object", "null"],
          "properties": {
            "orders_count": {"type": "integer", "minimum": 2, "maximum": 200},
            "spacing_type": {"enum": ["linear", "geometric"]},
            "spacing_percentage": {"type": "number", "exclusiveMinimum": 0},
            "martingale_multiplier": {"type": "number", "minimum": 1}
          }
        },
        "risk_management": {
          "type": "object",
          "required": ["stop_loss_percent", "take_profit_percent", "max_positions"],
          "properties": {
            "stop_loss_percent": {"type": "number", "exclusiveMinimum": 0, "maximum": 50},
            "take_profit_percent": {"type": "number", "exclusiveMinimum": 0, "maximum": 500},
            "max_positions": {"type": "integer", "minimum": 1, "maximum": 20},
            "risk_per_trade": {"type": "number", "minimum": 0},
            "max_drawdown": {"type": "number", "minimum": 0}
          }
        },
        "order_management": {
          "type": "object",
          "properties": {
            "base_order_size": {"type": "number", "minimum": 0},
            "safety_order_size": {"type": "number", "minimum": 0},
            "safety_orders_count": {"type": "integer", "minimum": 0, "maximum": 20},
            "price_deviation": {"type": "number", "minimum": 0}
          }
        }
      }
    }
  }
}`

// ErrTakeProfitBelowStopLoss is returned for configs whose take profit does not exceed the stop loss
var ErrTakeProfitBelowStopLoss = errors.New("take_profit_percent must exceed stop_loss_percent")

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func specificationValidator() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(specificationSchemaURL, strings.NewReader(specificationSchema)); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = compiler.Compile(specificationSchemaURL)
	})
	return compiledSchema, schemaErr
}

// ParseSpecification validates a client supplied bot config and decodes it.
func ParseSpecification(raw []byte) (*BotSpecification, error) {
	sch, err := specificationValidator()
	if err != nil {
		return nil, fmt.Errorf("compile specification schema: %w", err)
	}

	var doc interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid bot config json: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return nil, fmt.Errorf("invalid bot config: %w", err)
	}

	var spec BotSpecification
	if err := json.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("decode bot config: %w", err)
	}
	rm := spec.AdvancedSettings.RiskManagement
	if rm.TakeProfitPercent <= rm.StopLossPercent {
		return nil, ErrTakeProfitBelowStopLoss
	}
	return &spec, nil
}

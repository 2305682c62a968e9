package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sevendrop/backend/internal/model"
	"github.com/sevendrop/backend/pkg/jwt"
	"github.com/sevendrop/backend/pkg/xcontext"
	"github.com/urfave/cli/v2"
)

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func (s *srv) runDraw(cctx *cli.Context) error {
	if err := s.loadServices(cctx, false); err != nil {
		return err
	}
	defer s.close()

	resp, err := s.dropDomain.RunDraw(s.ctx, &model.RunDrawRequest{PeriodKey: cctx.String("period")})
	if err != nil {
		return err
	}

	return printJSON(resp)
}

func (s *srv) resetPeriod(cctx *cli.Context) error {
	if err := s.loadServices(cctx, false); err != nil {
		return err
	}
	defer s.close()

	resp, err := s.dropDomain.ResetPeriod(s.ctx, &model.ResetPeriodRequest{PeriodKey: cctx.String("period")})
	if err != nil {
		return err
	}

	return printJSON(resp)
}

func (s *srv) retryPayouts(cctx *cli.Context) error {
	if err := s.loadServices(cctx, false); err != nil {
		return err
	}
	defer s.close()

	if cctx.Bool("all") {
		return s.dropDomain.RetryAllPayouts(s.ctx)
	}

	resp, err := s.dropDomain.RetryPayouts(s.ctx, &model.RetryPayoutsRequest{PeriodKey: cctx.String("period")})
	if err != nil {
		return err
	}

	return printJSON(resp)
}

func (s *srv) generateToken(cctx *cli.Context) error {
	if err := s.loadConfig(cctx); err != nil {
		return err
	}

	cfg := xcontext.Configs(s.ctx).Auth
	if cfg.OperatorSecret == "" {
		return fmt.Errorf("auth.operator_secret is not set")
	}

	name := cctx.String("name")
	engine := jwt.NewEngine[model.OperatorToken](cfg.OperatorSecret, cfg.OperatorExpiration)
	token, err := engine.Generate(name, model.OperatorToken{Name: name})
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}

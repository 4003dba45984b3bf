package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/nexconsult/sri-invoices/internal/credentials"
	"github.com/nexconsult/sri-invoices/internal/services"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func encryptCmd() *cobra.Command {
	var value string

	cmd := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt a portal password in the stored iv:ciphertext:tag format",
		RunE: func(cmd *cobra.Command, args []string) error {
			if value == "" {
				return fmt.Errorf("--value is required")
			}

			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			cipher, err := credentials.NewCipher(cfg.Security.EncryptionKey)
			if err != nil {
				return err
			}
			encrypted, err := cipher.Encrypt(value)
			if err != nil {
				return err
			}
			fmt.Println(encrypted)
			return nil
		},
	}

	cmd.Flags().StringVar(&value, "value", "", "Plain text to encrypt")

	return cmd
}

func companiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "companies",
		Short: "List the companies with stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(func(c *services.Container, _ *logrus.Logger) error {
				companies, err := c.CompanyService.List(cmd.Context())
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "RUC\tNAME\tUSERNAME\tUPDATED")
				for _, company := range companies {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", company.RUC, company.Name, company.Username,
						company.UpdatedAt.Format("2006-01-02 15:04"))
				}
				return w.Flush()
			})
		},
	}
}
